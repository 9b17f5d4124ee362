package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/serde"
	sjson "go.dedis.ch/ballot/serde/json"
	"golang.org/x/xerrors"
)

// maxBodySize is the maximum size of a request.
const maxBodySize = 1 << 20

var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ballot_rpc_requests_total",
	Help: "total number of JSON-RPC requests served per method and outcome",
}, []string{"method", "outcome"})

func init() {
	ballot.PromCollectors = append(ballot.PromCollectors, promRequests)
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Handler serves a ledger over JSON-RPC.
//
// - implements http.Handler
type Handler struct {
	logger   zerolog.Logger
	backend  ledger.Client
	tracer   opentracing.Tracer
	context  serde.Context
	proposal types.ProposalFactory
	methods  map[string]handlerFunc
}

// NewHandler returns a handler serving the backend. The fundAccount method is
// only available when the backend implements ledger.Faucet.
func NewHandler(backend ledger.Client) *Handler {
	h := &Handler{
		logger:  ballot.Logger.With().Str("module", "rpc-server").Logger(),
		backend: backend,
		tracer:  opentracing.GlobalTracer(),
		context: sjson.NewContext(),
	}

	h.methods = map[string]handlerFunc{
		MethodGetNetwork:     h.getNetwork,
		MethodGetAccount:     h.getAccount,
		MethodSimulate:       h.simulate,
		MethodSend:           h.send,
		MethodGetTransaction: h.getTransaction,
	}

	faucet, ok := backend.(ledger.Faucet)
	if ok {
		h.methods[MethodFund] = func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var params addressParams

			err := decodeParams(raw, &params)
			if err != nil {
				return nil, err
			}

			account, err := faucet.Fund(ctx, params.Address)
			if err != nil {
				return nil, err
			}

			return encodeAccount(account), nil
		}
	}

	return h
}

// ServeHTTP implements http.Handler. It decodes the request, calls the method
// and writes the response. The HTTP status is always 200 unless the request
// is not a POST.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is allowed", http.StatusMethodNotAllowed)
		return
	}

	var req request

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req)
	if err != nil {
		h.reply(w, response{Error: &Error{Code: CodeParseError, Message: err.Error()}})
		return
	}

	resp := response{ID: req.ID}

	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
		h.reply(w, resp)
		return
	}

	fn, found := h.methods[req.Method]
	if !found {
		promRequests.WithLabelValues("unknown", "error").Inc()

		resp.Error = &Error{
			Code:    CodeMethodNotFound,
			Message: "method '" + req.Method + "' not found",
		}
		h.reply(w, resp)
		return
	}

	spanCtx, _ := h.tracer.Extract(opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(r.Header))

	span := h.tracer.StartSpan(req.Method, ext.RPCServerOption(spanCtx))
	defer span.Finish()

	ctx := opentracing.ContextWithSpan(r.Context(), span)

	result, err := fn(ctx, req.Params)
	if err != nil {
		ext.Error.Set(span, true)
		promRequests.WithLabelValues(req.Method, "error").Inc()

		resp.Error = toError(err)

		h.logger.Debug().
			Str("method", req.Method).
			Str("id", req.ID).
			Err(err).
			Msg("request failed")

		h.reply(w, resp)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Error{Code: CodeInternal, Message: err.Error()}
		h.reply(w, resp)
		return
	}

	promRequests.WithLabelValues(req.Method, "ok").Inc()

	resp.Result = raw
	h.reply(w, resp)
}

func (h *Handler) reply(w http.ResponseWriter, resp response) {
	resp.JSONRPC = Version

	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(resp)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (h *Handler) getNetwork(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	network, err := h.backend.GetNetwork(ctx)
	if err != nil {
		return nil, err
	}

	return encodeNetwork(network), nil
}

func (h *Handler) getAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params addressParams

	err := decodeParams(raw, &params)
	if err != nil {
		return nil, err
	}

	account, err := h.backend.GetAccount(ctx, params.Address)
	if err != nil {
		return nil, err
	}

	return encodeAccount(account), nil
}

func (h *Handler) simulate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params transactionParams

	err := decodeParams(raw, &params)
	if err != nil {
		return nil, err
	}

	proposal, err := h.proposal.ProposalOf(h.context, params.Transaction)
	if err != nil {
		return nil, paramsError{err: xerrors.Errorf("malformed transaction: %v", err)}
	}

	sim, err := h.backend.Simulate(ctx, proposal)
	if err != nil {
		return nil, err
	}

	return encodeSimulation(sim), nil
}

func (h *Handler) send(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params transactionParams

	err := decodeParams(raw, &params)
	if err != nil {
		return nil, err
	}

	res, err := h.backend.Send(ctx, params.Transaction)
	if err != nil {
		return nil, err
	}

	m := sendResult{
		Status:       string(res.Status),
		Hash:         res.Hash,
		LatestLedger: res.LatestLedger,
		ErrorResult:  res.ErrorResult,
	}

	return m, nil
}

func (h *Handler) getTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params hashParams

	err := decodeParams(raw, &params)
	if err != nil {
		return nil, err
	}

	info, err := h.backend.GetTransaction(ctx, params.Hash)
	if err != nil {
		return nil, err
	}

	return encodeTransaction(info), nil
}

type paramsError struct {
	err error
}

func (e paramsError) Error() string {
	return e.err.Error()
}

func decodeParams(raw json.RawMessage, params interface{}) error {
	if len(raw) == 0 {
		return paramsError{err: xerrors.New("missing params")}
	}

	err := json.Unmarshal(raw, params)
	if err != nil {
		return paramsError{err: xerrors.Errorf("invalid params: %v", err)}
	}

	return nil
}

func toError(err error) *Error {
	var notFound ledger.AccountNotFoundError
	if xerrors.As(err, &notFound) {
		return &Error{Code: CodeAccountNotFound, Message: err.Error()}
	}

	var perr paramsError
	if xerrors.As(err, &perr) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	return &Error{Code: CodeInternal, Message: err.Error()}
}

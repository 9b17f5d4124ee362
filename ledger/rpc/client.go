package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"go.dedis.ch/ballot/ledger"
	"go.dedis.ch/ballot/ledger/types"
	"go.dedis.ch/ballot/serde"
	sjson "go.dedis.ch/ballot/serde/json"
	"golang.org/x/xerrors"
)

// DefaultTimeout is the timeout of a single HTTP request.
const DefaultTimeout = 30 * time.Second

// ClientOption is the type of option to customize the client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used to send the requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTracer sets the tracer used to propagate the spans of the requests. The
// global tracer is used by default.
func WithTracer(tracer opentracing.Tracer) ClientOption {
	return func(cl *Client) {
		cl.tracer = tracer
	}
}

// Client is a ledger client that talks to a JSON-RPC endpoint.
//
// - implements ledger.Client
// - implements ledger.Faucet
type Client struct {
	logger  zerolog.Logger
	url     string
	http    *http.Client
	tracer  opentracing.Tracer
	context serde.Context
}

// NewClient returns a new client for the endpoint.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		logger:  ballot.Logger.With().Str("module", "rpc").Str("url", url).Logger(),
		url:     url,
		http:    &http.Client{Timeout: DefaultTimeout},
		tracer:  opentracing.GlobalTracer(),
		context: sjson.NewContext(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetNetwork implements ledger.Client. It returns the description of the
// network.
func (c *Client) GetNetwork(ctx context.Context) (ledger.Network, error) {
	var res networkResult

	err := c.call(ctx, MethodGetNetwork, nil, &res)
	if err != nil {
		return ledger.Network{}, err
	}

	return decodeNetwork(res), nil
}

// GetAccount implements ledger.Client. It returns the state of the account, or
// a ledger.AccountNotFoundError when it does not exist.
func (c *Client) GetAccount(ctx context.Context, addr string) (ledger.Account, error) {
	var res accountResult

	err := c.call(ctx, MethodGetAccount, addressParams{Address: addr}, &res)
	if err != nil {
		var rpcErr *Error
		if xerrors.As(err, &rpcErr) && rpcErr.Code == CodeAccountNotFound {
			return ledger.Account{}, ledger.AccountNotFoundError{Address: addr}
		}

		return ledger.Account{}, err
	}

	return decodeAccount(res), nil
}

// Simulate implements ledger.Client. It simulates the proposal on the remote
// ledger.
func (c *Client) Simulate(ctx context.Context, p types.Proposal) (ledger.Simulation, error) {
	data, err := p.Serialize(c.context)
	if err != nil {
		return ledger.Simulation{}, xerrors.Errorf("failed to serialize proposal: %v", err)
	}

	var res simulateResult

	err = c.call(ctx, MethodSimulate, transactionParams{Transaction: data}, &res)
	if err != nil {
		return ledger.Simulation{}, err
	}

	sim, err := decodeSimulation(res)
	if err != nil {
		return sim, ledger.NewTransportError(MethodSimulate,
			xerrors.Errorf("malformed simulation: %v", err))
	}

	return sim, nil
}

// Send implements ledger.Client. It sends the signed envelope to the remote
// ledger.
func (c *Client) Send(ctx context.Context, envelope []byte) (ledger.SendResult, error) {
	var res sendResult

	err := c.call(ctx, MethodSend, transactionParams{Transaction: envelope}, &res)
	if err != nil {
		return ledger.SendResult{}, err
	}

	sr := ledger.SendResult{
		Status:       ledger.SendStatus(res.Status),
		Hash:         res.Hash,
		LatestLedger: res.LatestLedger,
		ErrorResult:  res.ErrorResult,
	}

	return sr, nil
}

// GetTransaction implements ledger.Client. It returns the status of the
// transaction.
func (c *Client) GetTransaction(ctx context.Context, hash string) (ledger.TxInfo, error) {
	var res transactionResult

	err := c.call(ctx, MethodGetTransaction, hashParams{Hash: hash}, &res)
	if err != nil {
		return ledger.TxInfo{}, err
	}

	info, err := decodeTransaction(res)
	if err != nil {
		return info, ledger.NewTransportError(MethodGetTransaction,
			xerrors.Errorf("malformed transaction: %v", err))
	}

	return info, nil
}

// Fund implements ledger.Faucet. It asks the remote ledger to fund the
// account.
func (c *Client) Fund(ctx context.Context, addr string) (ledger.Account, error) {
	var res accountResult

	err := c.call(ctx, MethodFund, addressParams{Address: addr}, &res)
	if err != nil {
		return ledger.Account{}, err
	}

	return decodeAccount(res), nil
}

// call sends the request and populates the result with the response. Any
// failure that is not an answer of the ledger is returned as a transport
// error.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	id := xid.New().String()

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, method)
	defer span.Finish()

	span.SetTag("request_id", id)

	req := request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
	}

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return xerrors.Errorf("failed to encode params: %v", err)
		}

		req.Params = raw
	}

	body, err := json.Marshal(req)
	if err != nil {
		return xerrors.Errorf("failed to encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ledger.NewTransportError(method, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", id)

	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, http.MethodPost)
	ext.HTTPUrl.Set(span, c.url)

	err = c.tracer.Inject(span.Context(), opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(httpReq.Header))
	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to inject span")
	}

	c.logger.Trace().Str("method", method).Str("id", id).Msg("sending request")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		ext.Error.Set(span, true)
		return ledger.NewTransportError(method, err)
	}

	defer httpResp.Body.Close()

	ext.HTTPStatusCode.Set(span, uint16(httpResp.StatusCode))

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ledger.NewTransportError(method, xerrors.Errorf("failed to read body: %v", err))
	}

	var resp response

	err = json.Unmarshal(data, &resp)
	if err != nil {
		return ledger.NewTransportError(method,
			xerrors.Errorf("malformed response (HTTP %d): %v", httpResp.StatusCode, err))
	}

	if resp.ID != id {
		return ledger.NewTransportError(method,
			xerrors.Errorf("response id '%s' does not match '%s'", resp.ID, id))
	}

	if resp.Error != nil {
		ext.Error.Set(span, true)

		if resp.Error.Code == CodeAccountNotFound {
			return xerrors.Errorf("%s: %w", method, resp.Error)
		}

		return ledger.NewTransportError(method, resp.Error)
	}

	if result == nil {
		return nil
	}

	err = json.Unmarshal(resp.Result, result)
	if err != nil {
		return ledger.NewTransportError(method, xerrors.Errorf("malformed result: %v", err))
	}

	return nil
}

// Package http implements the proxy with a standard HTTP server. Each request
// gets a request ID and a span, and it is logged once served.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/ballot"
	"golang.org/x/xerrors"
)

type key int

const (
	requestIDKey key = 0
)

// HeaderRequestID is the header carrying the request ID.
const HeaderRequestID = "X-Request-Id"

const shutdownTimeout = 10 * time.Second

// Option is the type of option to customize the server.
type Option func(*HTTP)

// WithTracer sets the tracer that creates the span of each request.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(h *HTTP) {
		h.tracer = tracer
	}
}

// HTTP is an HTTP server.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	tracer     opentracing.Tracer
	listenAddr string
	ln         net.Listener
}

// NewHTTP creates a new server that will listen on the address. An empty port
// means a random free one.
func NewHTTP(listenAddr string, opts ...Option) *HTTP {
	h := &HTTP{
		mux:        http.NewServeMux(),
		logger:     ballot.Logger.With().Str("role", "http proxy").Logger(),
		tracer:     opentracing.GlobalTracer(),
		listenAddr: listenAddr,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.server = &http.Server{
		Handler:           h.identify(h.trace(h.logging(h.mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return h
}

// Listen implements proxy.Proxy. It blocks until the server is stopped.
func (h *HTTP) Listen() error {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err)
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	h.logger.Info().Stringer("addr", ln.Addr()).Msg("server is ready to handle requests")

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return xerrors.Errorf("failed to serve: %v", err)
	}

	h.logger.Info().Msg("server stopped")

	return nil
}

// Stop implements proxy.Proxy. It gracefully shuts the server down.
func (h *HTTP) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.server.SetKeepAlivesEnabled(false)

	err := h.server.Shutdown(ctx)
	if err != nil {
		h.logger.Err(err).Msg("could not gracefully shutdown the server")
	}
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler implements proxy.Proxy.
func (h *HTTP) RegisterHandler(path string, handler http.Handler) {
	h.mux.Handle(path, handler)
}

// RegisterMetrics registers the collectors of the packages to the registerer
// and serves them on the path.
func (h *HTTP) RegisterMetrics(path string, reg prometheus.Registerer, gatherer prometheus.Gatherer) {
	for _, c := range ballot.PromCollectors {
		err := reg.Register(c)
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to register collector")
		}
	}

	h.RegisterHandler(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// RequestID returns the ID of the request served with the context, or an
// empty string.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// identify makes sure each request has an ID, and returns it to the client.
func (h *HTTP) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = xid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(HeaderRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// trace starts a span for the request, following the span of the client if
// any.
func (h *HTTP) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parent, _ := h.tracer.Extract(opentracing.HTTPHeaders,
			opentracing.HTTPHeadersCarrier(r.Header))

		span := h.tracer.StartSpan(r.URL.Path, ext.RPCServerOption(parent))
		defer span.Finish()

		ext.HTTPMethod.Set(span, r.Method)
		ext.HTTPUrl.Set(span, r.URL.String())
		span.SetTag("request_id", RequestID(r.Context()))

		next.ServeHTTP(w, r.WithContext(opentracing.ContextWithSpan(r.Context(), span)))
	})
}

func (h *HTTP) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		defer func() {
			h.logger.Info().
				Str("requestID", RequestID(r.Context())).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Str("remoteAddr", r.RemoteAddr).
				Str("agent", r.UserAgent()).
				Dur("duration", time.Since(start)).
				Msg("request served")
		}()

		next.ServeHTTP(w, r)
	})
}

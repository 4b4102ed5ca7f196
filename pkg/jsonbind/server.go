package jsonbind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/google/uuid"

	"github.com/fiam/jsonbind/pkg/jsonbind/api"
	"github.com/fiam/jsonbind/pkg/jsonbind/format"
	"github.com/fiam/jsonbind/pkg/jsonbind/middleware"
)

const requestIDHeader = "X-Request-Id"

// StatusCoder can be implemented by responses to override the default
// 200 status code.
type StatusCoder interface {
	StatusCode() int
}

type Server struct {
	server  *http.Server
	mux     *http.ServeMux
	binder  *Binder
	outputs []format.OutputFormatter
	limiter *middleware.RateLimiter
	opts    options
}

func NewServer(addr string, opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if len(o.InputFormatters) == 0 {
		return nil, errors.New("at least one input formatter is required")
	}
	if len(o.OutputFormatters) == 0 {
		return nil, errors.New("at least one output formatter is required")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	srv := &Server{
		mux:     mux,
		binder:  newBinder(o),
		outputs: o.OutputFormatters,
		opts:    o,
	}

	middlewares := []middleware.Middleware{
		middleware.Recovery(o.Logger),
		middleware.AccessLog(o.Logger),
	}
	if len(o.CORSOrigins) > 0 {
		middlewares = append(middlewares, middleware.CORS(o.Logger, o.CORSOrigins...))
	}
	if o.RateLimit > 0 {
		srv.limiter = middleware.NewRateLimiter(o.Logger, middleware.RemoteHostKey, o.RateLimit, o.RateBurst)
		srv.limiter.OnLimit = srv.serveRateLimited
		middlewares = append(middlewares, srv.limiter.Limit)
	}

	srv.server = &http.Server{
		Handler: middleware.Chain(http.HandlerFunc(srv.serveMux), middlewares...),
		Addr:    addr,
	}
	return srv, nil
}

// Handle registers fn for pattern. The request body is bound to a new Req
// by the server's input formatters before calling fn.
func Handle[Req, Resp any](s *Server, pattern string, fn func(ctx context.Context, req *Req) (Resp, error)) {
	modelType := reflect.TypeFor[Req]()
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := s.requestContext(w, r, pattern)
		model, err := s.binder.Bind(ctx, w, r, modelType)
		if err != nil {
			s.writeError(ctx, w, r, err)
			return
		}
		resp, err := fn(ctx, model.(*Req))
		if err != nil {
			s.writeError(ctx, w, r, err)
			return
		}
		status := http.StatusOK
		if sc, ok := any(resp).(StatusCoder); ok {
			status = sc.StatusCode()
		}
		out := format.SelectOutput(s.outputs, r.Header.Get("Accept"))
		if err := out.Write(ctx, w, status, resp); err != nil {
			api.Logger(ctx).Error("serving response to client", slog.Any("error", err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}

func (s *Server) requestContext(w http.ResponseWriter, r *http.Request, pattern string) context.Context {
	requestID := r.Header.Get(requestIDHeader)
	if _, err := uuid.Parse(requestID); err != nil {
		requestID = uuid.New().String()
	}
	w.Header().Set(requestIDHeader, requestID)
	ctx := api.ContextWithLogger(r.Context(), s.opts.Logger)
	ctx = api.ContextWithRequestID(ctx, requestID)
	return api.ContextWithEndpoint(ctx, pattern)
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, r *http.Request, e error) {
	apiErr := api.AsError(e)
	status := apiErr.StatusCode()
	logger := api.Logger(ctx).With(slog.String("endpoint", api.Endpoint(ctx)))
	message := e.Error()
	if apiErr.Code == api.ErrorCodeInternal {
		logger.Error("serving request", slog.Any("error", e))
		message = "internal error"
	} else {
		logger.Debug("rejecting request", slog.Any("error", e), slog.Int("status", status))
	}
	resp := &api.ErrorResponse{
		Code:      apiErr.Code,
		Message:   message,
		RequestID: api.RequestID(ctx),
	}
	out := format.SelectOutput(s.outputs, r.Header.Get("Accept"))
	if err := out.Write(ctx, w, status, resp); err != nil {
		logger.Error("serving error to client", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// serveMux dispatches to the mux, reporting requests without a matching
// route as NotFound or MethodNotAllowed errors.
func (s *Server) serveMux(w http.ResponseWriter, r *http.Request) {
	h, pattern := s.mux.Handler(r)
	if pattern != "" {
		s.mux.ServeHTTP(w, r)
		return
	}
	uw := &unmatchedWriter{header: make(http.Header)}
	h.ServeHTTP(uw, r)
	code := api.ErrorCodeNotFound
	if uw.status == http.StatusMethodNotAllowed {
		code = api.ErrorCodeMethodNotAllowed
		w.Header().Set("Allow", uw.header.Get("Allow"))
	}
	ctx := s.requestContext(w, r, "")
	s.writeError(ctx, w, r, api.ErrWithCode(code, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path)))
}

// unmatchedWriter records what the mux would reply for an unmatched request.
type unmatchedWriter struct {
	header http.Header
	status int
}

func (w *unmatchedWriter) Header() http.Header { return w.header }
func (w *unmatchedWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *unmatchedWriter) WriteHeader(status int) { w.status = status }

func (s *Server) serveRateLimited(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(w, r, "")
	s.writeError(ctx, w, r, api.ErrWithCode(api.ErrorCodeRateLimited, errors.New("rate limit exceeded")))
}

// Handler returns the server's root handler, including its middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.server.Shutdown(ctx)
}

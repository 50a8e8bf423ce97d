package router

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"PDUFAScanner/internal/telemetry"
	"PDUFAScanner/pkg/logger"
	"PDUFAScanner/pkg/response"
)

// Handler registers its routes on the shared router.
type Handler interface {
	RegisterRoutes(router *mux.Router, logger *zap.Logger)
}

// Timeouts bound a single request on the server.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Router is the HTTP entry point: handlers plus the middleware chain.
type Router struct {
	mux       *mux.Router
	limiter   *rate.Limiter
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
}

// NewRouter builds the router and registers every handler. A nil limiter
// disables rate limiting.
func NewRouter(limiter *rate.Limiter, tel *telemetry.Telemetry, logger *zap.Logger, handlers []Handler) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		mux:       mux.NewRouter(),
		limiter:   limiter,
		telemetry: tel,
		logger:    logger.Named("http"),
	}

	r.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Fail(w, http.StatusNotFound, "route not found")
	})
	r.mux.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.mux.Use(r.recoverMiddleware, r.observeMiddleware, r.rateLimitMiddleware)

	for _, h := range handlers {
		h.RegisterRoutes(r.mux, r.logger)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// CreateServer returns an http.Server serving the router on addr.
func (r *Router) CreateServer(addr string, timeouts Timeouts) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: timeouts.Read,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		ErrorLog:          logger.NewStd(r.logger, "server"),
	}
}

func (r *Router) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("handler panicked",
					zap.String("path", req.URL.Path),
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()))
				response.Fail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func (r *Router) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		elapsed := time.Since(start)

		route := req.URL.Path
		if current := mux.CurrentRoute(req); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		r.telemetry.RecordHTTP(req.Context(), req.Method, route, rec.status, elapsed)
		r.logger.Info("request",
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.String("path", req.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.String("remote", req.RemoteAddr))
	})
}

func (r *Router) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limiter != nil && !r.limiter.Allow() {
			response.Fail(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, req)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Package server exposes a tool host over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/tool"
)

// Host is the native tool host served at /api.
type Host interface {
	Manifest() tool.Manifest
	HandleToolCall(ctx context.Context, req tool.CallRequest) tool.Response
}

// Bridge is a protocol bridge served at /api/bridges/{bridge}.
type Bridge interface {
	Host
	HandleResources(ctx context.Context, req tool.ResourceRequest) tool.Response
}

// RequestRecorder receives one record per served request.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, elapsed time.Duration)
}

// Defaults applied by NewServer.
const (
	DefaultTimeout = 5 * time.Minute
	DefaultMaxBody = 1 << 20
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Host Host
	// Environment is reported by /health. Nil reports a valid environment.
	Environment *env.Environment
	Bridges     map[string]Bridge
	// Timeout bounds each call. Zero uses DefaultTimeout; negative disables it.
	Timeout time.Duration
	MaxBody int64
	Metrics RequestRecorder
	Logger  *slog.Logger
}

// Server is the toolhost HTTP API server.
type Server struct {
	host    Host
	env     *env.Environment
	bridges map[string]Bridge
	timeout time.Duration
	maxBody int64
	metrics RequestRecorder
	logger  *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	bridges := make(map[string]Bridge, len(cfg.Bridges))
	for name, b := range cfg.Bridges {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" || b == nil {
			continue
		}
		bridges[normalized] = b
	}
	return &Server{
		host:    cfg.Host,
		env:     cfg.Environment,
		bridges: bridges,
		timeout: timeout,
		maxBody: maxBody,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.maxBodyMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/manifest", s.handleManifest)
		r.Post("/call", s.handleCall)
		r.Route("/bridges/{bridge}", func(r chi.Router) {
			r.Get("/manifest", s.handleBridgeManifest)
			r.Post("/call", s.handleBridgeCall)
			r.Post("/resources", s.handleBridgeResources)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

// --- Middleware ---

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.RecordRequest(r.Method, route, status, elapsed)
		}
		s.logger.Info("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// callContext derives the per-call context carrying the server timeout.
func (s *Server) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout < 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

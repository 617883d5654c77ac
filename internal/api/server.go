package api

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/star/groundtrack/internal/auth"
	"github.com/star/groundtrack/internal/health"
	"github.com/star/groundtrack/internal/httputil"
	"github.com/star/groundtrack/internal/metrics"
	"github.com/star/groundtrack/internal/stream"
	"github.com/star/groundtrack/internal/tle"
)

// Config holds HTTP listener settings.
type Config struct {
	Addr       string `yaml:"addr" validate:"required"`
	TrustProxy bool   `yaml:"trust_proxy"`
	// RateLimit is the sustained requests per second allowed per client
	// IP. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
}

// Deps are the components the API serves.
type Deps struct {
	Tracker Tracker
	// Source is reloaded by POST /api/v1/tle/reload.
	Source tle.Source
	Stream *stream.Handler
	Web    fs.FS
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	limiter    *ipRateLimiter
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. Request contexts derive from
// baseCtx so long-lived streams end when it is cancelled.
func NewServer(baseCtx context.Context, cfg Config, authCfg auth.Config, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	h := &handlers{tracker: deps.Tracker, source: deps.Source, logger: logger}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return deps.Tracker.Latest() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())

	// Snapshots and listings grow with the tracked set; compress them.
	// Streams are left alone so frames are not held back by the encoder.
	mux.Handle("GET /api/v1/snapshot", gzhttp.GzipHandler(http.HandlerFunc(h.snapshot)))
	mux.Handle("GET /api/v1/objects", gzhttp.GzipHandler(http.HandlerFunc(h.objects)))
	mux.HandleFunc("GET /api/v1/objects/{id}", h.object)
	mux.Handle("GET /api/v1/diagnostics", gzhttp.GzipHandler(http.HandlerFunc(h.diagnostics)))
	mux.HandleFunc("POST /api/v1/tle/reload", h.reload)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandleSSE)
		mux.HandleFunc("GET /api/v1/ws/positions", deps.Stream.HandleWebSocket)
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	s := &Server{logger: logger}

	// Build middleware chain: metrics -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	if cfg.RateLimit > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy, maxTrackedClients)
		handler = s.limiter.middleware(handler)
	}
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap exposes the wrapped writer to http.ResponseController, which the
// stream handlers use for deadlines and WebSocket upgrades.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/ephem"
	"github.com/star/satmap/internal/health"
	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/sampler"
)

// Config holds HTTP handoff settings.
type Config struct {
	Addr          string
	Auth          auth.Config
	TrustProxy    bool
	MaxSamples    int           // satellites x epochs per request
	DefaultWindow time.Duration // used when the request has no duration
	DefaultStep   time.Duration // used when the request has no step
	MinElevation  float64       // default polar mask, degrees
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		MaxSamples:    200000,
		DefaultWindow: 12 * time.Hour,
		DefaultStep:   5 * time.Minute,
	}
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// deps are what the handlers share. All of it is safe for concurrent use.
type deps struct {
	cfg     Config
	store   *ephem.Store
	prop    *propagation.Propagator
	sampler *sampler.Sampler
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, store *ephem.Store, prop *propagation.Propagator, smp *sampler.Sampler, logger *slog.Logger) *Server {
	d := &deps{cfg: cfg, store: store, prop: prop, sampler: smp, logger: logger, now: time.Now}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = d.routes()
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func (d *deps) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(d.ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/satellites", d.satellitesHandler)
	mux.HandleFunc("GET /api/v1/satellites/{id}", d.satelliteHandler)
	mux.HandleFunc("GET /api/v1/sky", d.skyHandler)
	mux.HandleFunc("GET /api/v1/groundtrack", d.groundTrackHandler)
	mux.HandleFunc("GET /api/v1/passes", d.passesHandler)
	return mux
}

func (d *deps) ready() error {
	if d.store.Get() == nil {
		return errors.New("no element catalog loaded")
	}
	return nil
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
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

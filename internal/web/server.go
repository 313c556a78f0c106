package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"turnstile/internal/api"
	"turnstile/internal/config"
	"turnstile/internal/engine"
	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/store"
)

// Server hosts the attendance HTTP API.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	faces   *faceclient.Client
	engine  *engine.Engine
	info    api.DaemonInfo
	stream  *logging.StreamHub
	archive *logging.EventArchive

	router     *chi.Mux
	httpServer *http.Server
}

// Option adjusts server construction.
type Option func(*Server)

// WithEngine attaches the live pipeline so status and metrics endpoints
// report real state.
func WithEngine(eng *engine.Engine) Option {
	return func(s *Server) { s.engine = eng }
}

// WithFaceClient overrides the sidecar client used for health checks,
// re-identification, and enrollment.
func WithFaceClient(client *faceclient.Client) Option {
	return func(s *Server) { s.faces = client }
}

// WithDaemonInfo stamps process identity onto status responses.
func WithDaemonInfo(info api.DaemonInfo) Option {
	return func(s *Server) { s.info = info }
}

// WithEventStream attaches the daemon's log hub and its on-disk archive so
// the events endpoint can serve live and replayed records.
func WithEventStream(hub *logging.StreamHub, archive *logging.EventArchive) Option {
	return func(s *Server) {
		s.stream = hub
		s.archive = archive
	}
}

// NewServer builds the router, middleware stack, and HTTP server. The
// server does not listen until Start is called.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "web"),
		store:  st,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.faces == nil {
		s.faces = faceclient.New(cfg)
	}

	requestTimeout := time.Duration(cfg.Web.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	s.router = chi.NewRouter()
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(requestTimeout))
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Web.Bind,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start blocks serving requests until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("web server listening", logging.String("bind", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

// Router exposes the chi mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// logRequests records one debug line per request with method, path, status,
// and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("duration", time.Since(start)),
			logging.String("request_id", chimiddleware.GetReqID(r.Context())))
	})
}

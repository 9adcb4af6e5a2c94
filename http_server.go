package iotanomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// ServerDeps are the components a Server serves. Nil fields are created from the
// server configuration.
type ServerDeps struct {
	Store   *RunStore
	Hub     *EventHub
	Metrics *Metrics
	Ingest  *IngestBuffer
	Logger  *slog.Logger
}

// Server is the dashboard HTTP API.
type Server struct {
	cfg      Config
	analyzer *Analyzer
	store    *RunStore
	hub      *EventHub
	metrics  *Metrics
	ingest   *IngestBuffer
	logger   *slog.Logger

	rl      *rateLimiter
	handler http.Handler
	started time.Time

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

// NewServer validates cfg and wires the routes.
func NewServer(cfg Config, deps ServerDeps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		ingest:  deps.Ingest,
		logger:  deps.Logger,
		started: time.Now(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.store == nil {
		s.store = NewRunStore(NewMemoryBackend(), nil, cfg.Storage.MaxRuns)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.hub == nil && cfg.Stream.Enabled {
		s.hub = NewEventHub(cfg.Stream, s.metrics)
	}
	if s.ingest == nil && cfg.Ingest.Enabled {
		s.ingest = NewIngestBuffer(cfg.Ingest, s.metrics)
	}
	s.analyzer = NewAnalyzer(cfg, s.store, s.hub, s.metrics, s.logger)

	if cfg.HTTP.RateLimitPerSecond > 0 {
		s.rl = newRateLimiter(cfg.HTTP.RateLimitPerSecond, time.Second)
	}
	auth := newAuthenticator(cfg.Auth)

	wrap := func(route string, h http.HandlerFunc) http.HandlerFunc {
		h = authMiddleware(auth, h)
		if s.rl != nil {
			h = rateLimitMiddleware(s.rl, h)
		}
		return metricsMiddleware(s.metrics, route, h)
	}

	mux := http.NewServeMux()
	setupRunRoutes(mux, s, wrap)
	setupIngestRoutes(mux, s, wrap)
	setupDashboardRoutes(mux, s, wrap)
	mux.HandleFunc("GET /metrics", wrap("/metrics", s.metrics.Handler().ServeHTTP))
	if s.hub != nil {
		mux.HandleFunc("GET /ws", wrap("/ws", s.hub.WebSocketHandler()))
	}
	s.handler = mux
	return s, nil
}

// OpenServer opens the configured run store and returns a server over it.
func OpenServer(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenRunStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	s, err := NewServer(cfg, ServerDeps{Store: store, Logger: logger})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Analyzer returns the analyzer used by the upload and sample routes.
func (s *Server) Analyzer() *Analyzer {
	return s.analyzer
}

// Store returns the run store.
func (s *Server) Store() *RunStore {
	return s.store
}

// ListenAndServe serves on cfg.HTTP.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrClosed
	}
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	// Hub subscribers hold WebSocket connections open; end them before waiting.
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// Close stops background work and closes the run store.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.srv
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}
	if s.rl != nil {
		s.rl.close()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	return s.store.Close()
}

// Package api serves the narrator's HTTP interface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/narrator-go/internal/config"
	"github.com/dgnsrekt/narrator-go/internal/narrative"
	"github.com/dgnsrekt/narrator-go/internal/observe"
	"github.com/dgnsrekt/narrator-go/internal/queue"
)

// Narrator is the part of playback.Narrator the API inspects.
type Narrator interface {
	Preview(ctx context.Context, text string, commit bool) []narrative.Segment
	State() *narrative.State
}

// Server handles HTTP API requests.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	server   *http.Server
	queue    *queue.Queue
	narrator Narrator
	limiter  *RateLimiter
	metrics  *observe.Metrics
}

// New creates an API server. metricsHandler, when non-nil, is served at
// /metrics. A nil queue accepts jobs without running them.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	q *queue.Queue,
	narrator Narrator,
	metrics *observe.Metrics,
	metricsHandler http.Handler,
) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		narrator: narrator,
		limiter:  NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		metrics:  metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/narrate", s.withAuth(s.withRateLimit(s.handleNarrate)))
	mux.HandleFunc("POST /v1/segments", s.withAuth(s.handleSegments))
	mux.HandleFunc("GET /v1/attribution", s.handleGetAttribution)
	mux.HandleFunc("DELETE /v1/attribution", s.withAuth(s.handleResetAttribution))
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

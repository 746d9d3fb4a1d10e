package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hw-control/hgc/internal/auth"
	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/state"
)

// Server is the dashboard HTTP server.
type Server struct {
	httpServer     *http.Server
	store          *state.Store
	orchestrator   OrchestratorPort
	scheduler      SchedulerStatus
	authMiddleware *auth.Middleware
	metricsHandler http.Handler
	startTime      time.Time
	readTimeout    time.Duration
	idleTimeout    time.Duration
}

// NewServer creates the API server.
func NewServer(store *state.Store, orchestrator OrchestratorPort, scheduler SchedulerStatus,
	authMiddleware *auth.Middleware, cfg config.HTTPConfig) *Server {
	return &Server{
		store:          store,
		orchestrator:   orchestrator,
		scheduler:      scheduler,
		authMiddleware: authMiddleware,
		startTime:      time.Now(),
		readTimeout:    cfg.ReadTimeout,
		idleTimeout:    cfg.IdleTimeout,
	}
}

// SetMetricsHandler mounts the Prometheus scrape endpoint.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metricsHandler = h
}

// Start runs the HTTP server until Stop is called. WriteTimeout stays
// unset: the SSE stream is a deliberately long-lived response.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: s.readTimeout,
		IdleTimeout: s.idleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

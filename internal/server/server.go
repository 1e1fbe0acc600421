// Package server exposes the read-only HTTP surface: liveness, per-bot
// status, and Prometheus metrics. It never mutates bot state.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blingworks/blingbot/internal/domain"
	"github.com/blingworks/blingbot/internal/server/handler"
	"github.com/blingworks/blingbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port      int
	APIKey    string // if empty, authentication is disabled
	RateLimit int    // requests per second per client; 0 disables limiting
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
}

// Server is the headless HTTP API server for the bot fleet.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The metrics
// registry is served unauthenticated at /metrics so scrapers do not need
// credentials; limiter may be nil when no Redis is configured.
func NewServer(cfg Config, handlers Handlers, registry *prometheus.Registry, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness and metrics bypass auth.
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Status API behind the middleware chain.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/bots", handlers.Status.ListBots)
	api.HandleFunc("GET /api/bots/{id}", handlers.Status.GetBot)

	var apiHandler http.Handler = api
	apiHandler = middleware.Auth(cfg.APIKey)(apiHandler)
	if limiter != nil && cfg.RateLimit > 0 {
		apiHandler = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(apiHandler)
	}
	mux.Handle("/api/", apiHandler)

	h := middleware.Logging(logger)(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

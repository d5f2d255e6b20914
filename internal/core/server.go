// Package core provides the API chassis for the post office. It creates a
// chi router, enforces the cross-cutting concerns (panic recovery, request
// and correlation ids, logging, metrics) and lets handler packages mount
// their routes without importing each other.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"postoffice/internal/config"
	"postoffice/internal/telemetry"
)

// RouteRegistrar mounts a handler group under /v1.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics telemetry.Recorder

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe
	// V1RouteRegistrars are applied by MountRoutes, populated by main.
	V1RouteRegistrars []RouteRegistrar
	// Closers run on Shutdown in order, e.g. the database pool.
	Closers []func()

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty
// router. Callers add registrars and probes, then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:  cfg,
		Logger:  logger,
		Metrics: telemetry.Nop{},
		router:  chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, closeFn := range s.Closers {
		closeFn()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

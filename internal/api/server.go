// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/constants"
	"github.com/taibuivan/identity/internal/platform/middleware"
	"github.com/taibuivan/identity/internal/platform/sec"
	"github.com/taibuivan/identity/internal/users/account"
	"github.com/taibuivan/identity/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler. Always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. 200 only when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles the credential lifecycle routes and the admin unlock.
	Auth *auth.Handler

	// Account handles the owner's profile and sessions.
	Account *account.Handler

	// Metrics serves the Prometheus registry. Nil disables /metrics.
	Metrics http.Handler
}

// Middleware groups the stateful pieces of the middleware chain.
type Middleware struct {
	Verifier    middleware.TokenVerifier
	Guard       middleware.ClaimsValidator
	RateLimiter *middleware.IPRateLimiter
	Recorder    middleware.HTTPRecorder
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(cfg *config.Config, log *slog.Logger, mw Middleware, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.Trace())
	r.Use(middleware.StructuredLogger(log))
	if mw.Recorder != nil {
		r.Use(middleware.Metrics(mw.Recorder))
	}
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	if mw.RateLimiter != nil {
		r.Use(middleware.RateLimit(mw.RateLimiter))
	}
	r.Use(middleware.PanicRecovery(log))
	var validators []middleware.ClaimsValidator
	if mw.Guard != nil {
		validators = append(validators, mw.Guard)
	}
	r.Use(middleware.Authenticate(mw.Verifier, validators...))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated probes for container orchestration and scraping.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {
		api.Mount("/auth", h.Auth.Routes())
		api.Mount("/me", h.Account.Routes())
		api.With(middleware.RequireRole(sec.RoleAdmin)).Mount("/admin", h.Auth.AdminRoutes())
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs. A graceful
// [Server.Shutdown] is not reported as an error.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}

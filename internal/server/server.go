// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package server exposes the NeuraLens HTTP API: account and subscription
// management plus the image-processing endpoint, built on chi and huma.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/neuralens-dev/neuralens/pkg/health"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr         string
	CORSOrigins        []string
	RateLimitPerMinute int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

// Server wraps a chi router with a huma API and an HTTP server.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	done     chan struct{}
}

// New creates a Server with chi router, huma API, health endpoint, CORS,
// rate limiting, and bearer-token auth on protected routes.
func New(cfg Config, svc *Services) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "listen address is required")
	}
	if svc == nil {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "services are required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}

	srv := &Server{
		cfg:      cfg,
		services: svc,
		done:     make(chan struct{}),
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(RateLimitConfig{RequestsPerMinute: cfg.RateLimitPerMinute}, srv.done))
	r.Use(authMiddleware(svc.Auth()))

	// Huma API with OpenAPI spec
	humaConfig := huma.DefaultConfig("NeuraLens", "0.1.0")
	humaConfig.Info.Description = "AI photo editing API"
	api := humachi.New(r, humaConfig)

	srv.router = r
	srv.api = api

	// Health endpoint with per-provider circuit state.
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		out := &HealthResponse{}
		out.Body.Status = "ok"
		out.Body.Providers = svc.Images().Breakers().Snapshot()
		return out, nil
	})

	srv.registerRoutes()
	srv.registerImageRoute()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer close(s.done)

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return nlerr.Wrapf(err, nlerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	slog.Info("server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nlerr.Wrap(err, nlerr.CodeServerStartFailure, "serving")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return nlerr.Wrap(err, nlerr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body struct {
		Status    string                    `json:"status" example:"ok" doc:"Service status"`
		Providers map[string]health.Metrics `json:"providers" doc:"Circuit state per remote provider"`
	}
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Processor-Used", "Attempt-Count", "Fallback-Occurred"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// writeError renders an error as JSON on raw (non-huma) routes, mapping
// the error code to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := nlerr.HTTPStatus(err)
	body := map[string]string{"error": err.Error()}
	if code := nlerr.CodeOf(err); code != "" {
		body["code"] = string(code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		slog.Warn("failed to write error response", "error", encodeErr)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/neuralens-dev/neuralens/internal/auth"
	"github.com/neuralens-dev/neuralens/internal/billing"
	"github.com/neuralens-dev/neuralens/internal/config"
	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/provider"
	"github.com/neuralens-dev/neuralens/internal/server"
	"github.com/neuralens-dev/neuralens/internal/store"
	"github.com/neuralens-dev/neuralens/internal/store/sqlite"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server *server.Server
	Store  store.Store
}

// remoteClientFactory builds the remote provider client. Declared as a
// variable so tests can substitute a fake without real credentials.
var remoteClientFactory = func(ctx context.Context, cfg provider.Config) (dispatch.RemoteClient, error) {
	return provider.New(ctx, cfg)
}

// WireApp creates all subsystems and wires them together.
func WireApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := slog.Default()

	// 1. Storage backend.
	var (
		st  store.Store
		err error
	)
	switch cfg.Storage.Backend {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, nlerr.Wrapf(err, nlerr.CodeCLISetupFailure, "opening store at %s", cfg.Storage.Path)
		}
	}

	// 2. Remote provider client.
	client, err := remoteClientFactory(ctx, provider.Config{
		Name:    cfg.Provider.Name,
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		BaseURL: cfg.Provider.BaseURL,
	})
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrapf(err, nlerr.CodeCLISetupFailure, "creating %s provider", cfg.Provider.Name)
	}

	// 3. Dispatch pipeline: catalog, circuit breakers, bounded retries.
	breakers, err := dispatch.NewBreakerRegistry(dispatch.BreakerConfig{
		FailureThreshold: cfg.Dispatch.Breaker.FailureThreshold,
		Window:           cfg.Dispatch.Breaker.Window,
		Cooldown:         cfg.Dispatch.Breaker.Cooldown,
	})
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating breaker registry")
	}

	retrier, err := dispatch.NewRetrier(dispatch.Policy{
		MaxAttempts:    cfg.Dispatch.Retry.MaxAttempts,
		BaseDelay:      cfg.Dispatch.Retry.BaseDelay,
		Multiplier:     cfg.Dispatch.Retry.Multiplier,
		MaxDelay:       cfg.Dispatch.Retry.MaxDelay,
		Jitter:         cfg.Dispatch.Retry.Jitter,
		AttemptTimeout: cfg.Dispatch.Retry.AttemptTimeout,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating retrier")
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.DefaultRegistry(), client, breakers, retrier, logger)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating dispatcher")
	}

	// 4. Accounts and billing.
	if cfg.Auth.JWTSecret == "" {
		_ = st.Close()
		return nil, nlerr.New(nlerr.CodeCLISetupFailure,
			"auth.jwt_secret is required; set it in the config or store it as keyring://neuralens/jwt-secret")
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating token issuer")
	}

	var verifiers []auth.TokenVerifier
	if cfg.Auth.Google.Enabled {
		verifiers = append(verifiers, auth.NewGoogleVerifier(""))
	}
	if cfg.Auth.Facebook.Enabled {
		verifiers = append(verifiers, auth.NewFacebookVerifier(""))
	}

	authSvc, err := auth.NewService(st.Users(), tokens, verifiers, logger)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating auth service")
	}

	billingSvc, err := billing.NewService(st.Users(), logger)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating billing service")
	}

	purchaser, err := billing.NewPurchaser(billingSvc, st.Transactions(), nil, logger)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating purchaser")
	}

	// 5. HTTP server.
	services, err := server.NewServices(authSvc, billingSvc, purchaser, dispatcher)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{
		ListenAddr:         cfg.Server.Listen,
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, services)
	if err != nil {
		_ = st.Close()
		return nil, nlerr.Wrap(err, nlerr.CodeCLISetupFailure, "creating server")
	}

	return &App{Server: srv, Store: st}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

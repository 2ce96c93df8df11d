// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package provider selects and constructs the remote image-edit client.
package provider

import (
	"context"

	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/provider/gemini"
	"github.com/neuralens-dev/neuralens/internal/provider/openai"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Config selects which remote provider backs the dispatcher.
type Config struct {
	// Name is the provider identity: "gemini" or "openai".
	Name string
	// APIKey authenticates against the selected provider.
	APIKey string
	// Model optionally overrides the provider's default image model.
	Model string
	// BaseURL optionally overrides the provider endpoint (testing).
	BaseURL string
}

// New constructs the remote client named in cfg.
func New(ctx context.Context, cfg Config) (dispatch.RemoteClient, error) {
	switch cfg.Name {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, nlerr.Errorf(nlerr.CodeProviderNotFound, "unknown provider %q", cfg.Name)
	}
}

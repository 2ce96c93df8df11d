// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/neuralens-dev/neuralens/internal/secrets"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 120, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "neuralens.db", cfg.Storage.Path)
	assert.Equal(t, "gemini", cfg.Provider.Name)

	assert.Equal(t, 3, cfg.Dispatch.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Dispatch.Retry.Multiplier)
	assert.Equal(t, 8*time.Second, cfg.Dispatch.Retry.MaxDelay)
	assert.Equal(t, 0.1, cfg.Dispatch.Retry.Jitter)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.Retry.AttemptTimeout)

	assert.Equal(t, 5, cfg.Dispatch.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Dispatch.Breaker.Window)
	assert.Equal(t, time.Minute, cfg.Dispatch.Breaker.Cooldown)

	assert.Equal(t, time.Duration(0), cfg.Auth.TokenTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neuralens.yaml")
	yaml := `
server:
  listen: "0.0.0.0:9090"
storage:
  backend: memory
provider:
  name: openai
  api_key: sk-test
dispatch:
  retry:
    max_attempts: 5
auth:
  jwt_secret: super-secret
  token_ttl: 24h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, 5, cfg.Dispatch.Retry.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	// File values merge over defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.Retry.BaseDelay)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NEURALENS_SERVER_LISTEN", "127.0.0.1:7000")
	t.Setenv("NEURALENS_PROVIDER_NAME", "openai")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Listen)
	assert.Equal(t, "openai", cfg.Provider.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeConfigLoadReadFailure, nlerr.CodeOf(err))
}

func TestLoadResolvesKeyringSecrets(t *testing.T) {
	keyring.MockInit()
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("neuralens", "gemini-api-key", "gm-secret"))

	dir := t.TempDir()
	path := filepath.Join(dir, "neuralens.yaml")
	yaml := `
provider:
  name: gemini
  api_key: keyring://neuralens/gemini-api-key
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path, ks)
	require.NoError(t, err)
	assert.Equal(t, "gm-secret", cfg.Provider.APIKey)
}

func TestLoadUnresolvableSecretFails(t *testing.T) {
	keyring.MockInit()
	ks := secrets.NewKeyringStore()

	dir := t.TempDir()
	path := filepath.Join(dir, "neuralens.yaml")
	yaml := `
provider:
  api_key: keyring://neuralens/missing-key
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	_, err := Load(path, ks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.api_key")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Listen: "not-an-address", RateLimitPerMinute: -1},
		Storage: StorageConfig{Backend: "postgres"},
		Provider: ProviderConfig{
			Name: "midjourney",
		},
		Dispatch: DispatchConfig{
			Retry:   RetryConfig{MaxAttempts: 0, BaseDelay: -1, Multiplier: 0.5, Jitter: 2},
			Breaker: BreakerConfig{FailureThreshold: 0, Window: 0, Cooldown: 0},
		},
	}

	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 10, "every invalid field is reported")
}

func TestValidateListenAddress(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("", nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		listen  string
		wantErr bool
	}{
		{"host and port", "127.0.0.1:8080", false},
		{"port only", ":8080", false},
		{"empty", "", true},
		{"no port", "127.0.0.1", true},
		{"bad port", "127.0.0.1:banana", true},
		{"port too high", "127.0.0.1:99999", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			cfg.Server.Listen = tt.listen
			errs := cfg.Validate()
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidateSqliteNeedsPath(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Storage.Path = ""

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "storage.path")
}

func TestValidateMemoryBackendNeedsNoPath(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""

	assert.Empty(t, cfg.Validate())
}

func TestValidateRetryBounds(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Dispatch.Retry.MaxDelay = 100 * time.Millisecond // below base_delay

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "max_delay")
}

func TestDefaultConfigYAMLIsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neuralens.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o600))

	_, err := Load(path, nil)
	require.NoError(t, err)
}

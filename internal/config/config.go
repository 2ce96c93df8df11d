// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package config loads and validates the NeuraLens server configuration.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/neuralens-dev/neuralens/internal/secrets"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Config is the top-level NeuraLens configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig controls how the HTTP server listens.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimitPerMinute caps requests per client IP. 0 disables limiting.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // sqlite or memory
	Path    string `mapstructure:"path"`    // sqlite database file
}

// ProviderConfig selects and credentials the remote image provider.
type ProviderConfig struct {
	Name    string `mapstructure:"name"` // gemini or openai
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// DispatchConfig tunes the retry and circuit-breaker behavior around the
// remote provider.
type DispatchConfig struct {
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// RetryConfig tunes bounded exponential backoff.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	Multiplier     float64       `mapstructure:"multiplier"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Jitter         float64       `mapstructure:"jitter"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// AuthConfig controls token issuance and OAuth sign-in.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"` // 0 = non-expiring tokens
	Google    OAuthConfig   `mapstructure:"google"`
	Facebook  OAuthConfig   `mapstructure:"facebook"`
}

// OAuthConfig enables one OAuth sign-in provider.
type OAuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix NEURALENS_). keyring:// values
// are resolved through the OS keyring before unmarshalling.
func Load(path string, secretStore secrets.Store) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "neuralens.db")
	v.SetDefault("provider.name", "gemini")
	v.SetDefault("dispatch.retry.max_attempts", 3)
	v.SetDefault("dispatch.retry.base_delay", "500ms")
	v.SetDefault("dispatch.retry.multiplier", 2.0)
	v.SetDefault("dispatch.retry.max_delay", "8s")
	v.SetDefault("dispatch.retry.jitter", 0.1)
	v.SetDefault("dispatch.retry.attempt_timeout", "15s")
	v.SetDefault("dispatch.breaker.failure_threshold", 5)
	v.SetDefault("dispatch.breaker.window", "60s")
	v.SetDefault("dispatch.breaker.cooldown", "60s")
	v.SetDefault("auth.token_ttl", "0s")

	// Environment
	v.SetEnvPrefix("NEURALENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nlerr.Errorf(nlerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	if secretStore != nil {
		if err := secrets.ResolveViperSecrets(v, secretStore); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nlerr.Errorf(nlerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateProvider()...)
	errs = append(errs, c.validateDispatch()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else if port, err := strconv.Atoi(portStr); err != nil {
			errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
				"config: server.listen port must be a number, got %q", portStr))
		} else if port < 1 || port > 65535 {
			errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
				"config: server.listen port must be between 1 and 65535, got %d", port))
		}
	}

	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit_per_minute must not be negative, got %d",
			c.Server.RateLimitPerMinute,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: storage.path must not be empty for the sqlite backend"))
	}

	return errs
}

func (c *Config) validateProvider() []error {
	var errs []error

	validProviders := map[string]bool{"gemini": true, "openai": true}
	if !validProviders[c.Provider.Name] {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: provider.name must be one of [gemini, openai], got %q",
			c.Provider.Name,
		))
	}

	return errs
}

func (c *Config) validateDispatch() []error {
	var errs []error

	r := c.Dispatch.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.max_attempts must be at least 1, got %d", r.MaxAttempts))
	}
	if r.BaseDelay <= 0 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.base_delay must be greater than 0, got %s", r.BaseDelay))
	}
	if r.Multiplier < 1 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.multiplier must be at least 1, got %g", r.Multiplier))
	}
	if r.MaxDelay < r.BaseDelay {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.max_delay must not be below base_delay, got %s", r.MaxDelay))
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.jitter must be within [0, 1], got %g", r.Jitter))
	}
	if r.AttemptTimeout <= 0 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.retry.attempt_timeout must be greater than 0, got %s", r.AttemptTimeout))
	}

	b := c.Dispatch.Breaker
	if b.FailureThreshold < 1 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.breaker.failure_threshold must be at least 1, got %d", b.FailureThreshold))
	}
	if b.Window <= 0 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.breaker.window must be greater than 0, got %s", b.Window))
	}
	if b.Cooldown <= 0 {
		errs = append(errs, nlerr.Errorf(nlerr.CodeConfigValidateInvalidValue,
			"config: dispatch.breaker.cooldown must be greater than 0, got %s", b.Cooldown))
	}

	return errs
}

// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Tidegate server.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Client  ClientConfig  `koanf:"client"`
	Cache   CacheConfig   `koanf:"cache"`
	Gateway GatewayConfig `koanf:"gateway"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ClientConfig holds resilient request client settings: retry budget,
// backoff shape, adaptive timeouts, and circuit breaker thresholds.
type ClientConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=10"`

	// RetryBaseDelay is the backoff delay before the first retry; it
	// doubles on each subsequent retry up to RetryMaxDelay.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"min=0"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay" validate:"min=0"`

	// BaseTimeout is the per-attempt timeout for endpoints that match no
	// special class. Health, status, and heavy-query endpoints derive
	// their own timeouts from the endpoint class table.
	BaseTimeout time.Duration `koanf:"base_timeout" validate:"min=0"`

	// BreakerThreshold is the consecutive-failure count that opens an
	// origin's circuit. BreakerCooldown is the open period before a
	// half-open probe is allowed.
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"min=1"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown" validate:"min=0"`

	// CacheTTL is the default TTL for cached GET responses.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"min=0"`

	// BearerToken, when set, is sent as "Authorization: Bearer <token>"
	// on every upstream request unless the caller supplies its own.
	BearerToken string `koanf:"bearer_token"`
}

// CacheConfig holds intelligent cache settings.
type CacheConfig struct {
	// MaxEntries bounds the number of entries; reaching it triggers
	// score-based eviction of the least valuable quarter.
	MaxEntries int `koanf:"max_entries" validate:"min=1"`

	DefaultTTL      time.Duration `koanf:"default_ttl" validate:"min=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"min=0"`

	// Store selects the backing key-value store: "memory" or "badger".
	Store string `koanf:"store" validate:"oneof=memory badger"`

	// BadgerPath is the on-disk location for the badger store.
	BadgerPath string `koanf:"badger_path"`
}

// BackendConfig names one logical backend service and its replica URLs.
type BackendConfig struct {
	Service string   `koanf:"service" validate:"required"`
	URLs    []string `koanf:"urls" validate:"required,min=1"`
}

// GatewayConfig holds API gateway settings: registered backends, health
// checking, and rate limiting.
type GatewayConfig struct {
	Backends []BackendConfig `koanf:"backends"`

	// HealthInterval is how often every backend's /health endpoint is
	// probed. HealthProbesPerSecond paces probes across large backend
	// sets so a short interval cannot produce a probe burst.
	HealthInterval        time.Duration `koanf:"health_interval" validate:"min=0"`
	HealthProbesPerSecond float64       `koanf:"health_probes_per_second" validate:"min=0"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns a Config with production defaults. Defaults are applied
// first, then overridden by the config file and environment variables.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			MaxRetries:       3,
			RetryBaseDelay:   1 * time.Second,
			RetryMaxDelay:    10 * time.Second,
			BaseTimeout:      10 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  60 * time.Second,
			CacheTTL:         5 * time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries:      1000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			Store:           "memory",
			BadgerPath:      "/data/tidegate/cache",
		},
		Gateway: GatewayConfig{
			Backends:              nil,
			HealthInterval:        30 * time.Second,
			HealthProbesPerSecond: 10,
			RateLimitReqs:         100,
			RateLimitWindow:       1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if c.Cache.Store == "badger" && c.Cache.BadgerPath == "" {
		return fmt.Errorf("CACHE_BADGER_PATH is required when CACHE_STORE=badger")
	}

	for _, b := range c.Gateway.Backends {
		for _, raw := range b.URLs {
			u, err := url.Parse(raw)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("backend %q has invalid URL %q", b.Service, raw)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("backend %q URL %q must use http or https", b.Service, raw)
			}
		}
	}

	return nil
}

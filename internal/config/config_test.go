// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.Client.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.BreakerThreshold != 5 {
		t.Errorf("expected default breaker threshold 5, got %d", cfg.Client.BreakerThreshold)
	}
	if cfg.Client.BreakerCooldown != 60*time.Second {
		t.Errorf("expected default breaker cooldown 60s, got %v", cfg.Client.BreakerCooldown)
	}
	if cfg.Client.CacheTTL != 5*time.Minute {
		t.Errorf("expected default cache TTL 5m, got %v", cfg.Client.CacheTTL)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for port 0")
	}

	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for port 70000")
	}
}

func TestValidateRejectsBadStore(t *testing.T) {
	cfg := Default()
	cfg.Cache.Store = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown cache store")
	}

	cfg.Cache.Store = "badger"
	cfg.Cache.BadgerPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for badger store without path")
	}
}

func TestValidateRejectsBadBackendURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing scheme", "stac.example.com"},
		{"bad scheme", "ftp://stac.example.com"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Gateway.Backends = []BackendConfig{
				{Service: "stac", URLs: []string{tt.url}},
			}
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for URL %q", tt.url)
			}
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9911
client:
  max_retries: 2
  breaker_threshold: 7
gateway:
  backends:
    - service: stac
      urls:
        - http://stac-1.internal:8081
        - http://stac-2.internal:8081
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9911 {
		t.Errorf("expected port 9911 from file, got %d", cfg.Server.Port)
	}
	if cfg.Client.MaxRetries != 2 {
		t.Errorf("expected max retries 2 from file, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.BreakerThreshold != 7 {
		t.Errorf("expected breaker threshold 7 from file, got %d", cfg.Client.BreakerThreshold)
	}
	if len(cfg.Gateway.Backends) != 1 || len(cfg.Gateway.Backends[0].URLs) != 2 {
		t.Fatalf("expected one backend with two URLs, got %+v", cfg.Gateway.Backends)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("expected default cache max entries, got %d", cfg.Cache.MaxEntries)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9911\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SERVER_PORT", "9912")
	t.Setenv("CLIENT_CACHE_TTL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9912 {
		t.Errorf("expected env var to win over file, got port %d", cfg.Server.Port)
	}
	if cfg.Client.CacheTTL != 2*time.Minute {
		t.Errorf("expected cache TTL 2m from env, got %v", cfg.Client.CacheTTL)
	}
}

func TestEnvTransformDropsUnknownVars(t *testing.T) {
	if got := envTransformFunc("RANDOM_UNRELATED_VAR"); got != "" {
		t.Errorf("expected unknown env var to be dropped, got %q", got)
	}
	if got := envTransformFunc("CACHE_STORE"); got != "cache.store" {
		t.Errorf("expected cache.store, got %q", got)
	}
}

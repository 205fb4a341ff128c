// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tidegate/config.yaml",
	"/etc/tidegate/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The loaded config is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names to koanf config paths.
// Multi-word keys make a naive "_ to ." translation ambiguous, so every
// supported variable is listed explicitly.
var envMappings = map[string]string{
	"server_host":             "server.host",
	"server_port":             "server.port",
	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",

	"client_max_retries":       "client.max_retries",
	"client_retry_base_delay":  "client.retry_base_delay",
	"client_retry_max_delay":   "client.retry_max_delay",
	"client_base_timeout":      "client.base_timeout",
	"client_breaker_threshold": "client.breaker_threshold",
	"client_breaker_cooldown":  "client.breaker_cooldown",
	"client_cache_ttl":         "client.cache_ttl",
	"client_bearer_token":      "client.bearer_token",

	"cache_max_entries":      "cache.max_entries",
	"cache_default_ttl":      "cache.default_ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",
	"cache_store":            "cache.store",
	"cache_badger_path":      "cache.badger_path",

	"gateway_health_interval":          "gateway.health_interval",
	"gateway_health_probes_per_second": "gateway.health_probes_per_second",
	"gateway_rate_limit_reqs":          "gateway.rate_limit_reqs",
	"gateway_rate_limit_window":        "gateway.rate_limit_window",
	"gateway_rate_limit_disabled":      "gateway.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Unmapped variables are dropped so unrelated environment noise cannot
// leak into the configuration tree.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

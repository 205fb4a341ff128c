// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

// Package main is the entry point for the Tidegate gateway.
//
// Tidegate fronts the ocean data portal's backend services (Copernicus
// marine data, species occurrence, tile rendering) with a resilient
// request layer: request coalescing, adaptive timeouts, bounded retries
// with jittered backoff, per-origin circuit breakers, and a
// priority-aware response cache.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Cache store: in-memory map or durable BadgerDB, per config
//  3. Resilient client: breakers, retries, and the response cache
//  4. Gateway: backend registry, health checker, chi router
//  5. Supervisor tree: HTTP server, health checker, cache janitor
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (CONFIG_PATH or
// /etc/tidegate/config.yaml), built-in defaults.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests drain under the
// configured shutdown timeout, and the badger store is closed last.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arcasadev/tidegate/internal/cache"
	"github.com/arcasadev/tidegate/internal/client"
	"github.com/arcasadev/tidegate/internal/config"
	"github.com/arcasadev/tidegate/internal/gateway"
	"github.com/arcasadev/tidegate/internal/logging"
	"github.com/arcasadev/tidegate/internal/supervisor"
	"github.com/arcasadev/tidegate/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	logging.Info().
		Str("store", cfg.Cache.Store).
		Int("backends", len(cfg.Gateway.Backends)).
		Msg("Starting Tidegate")

	store, closeStore, err := openStore(cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer closeStore()

	responseCache, err := cache.New(store, cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cache")
	}

	upstreamClient := client.New(cfg.Client, responseCache)

	// Health probes get their own client: no retries (the loop itself
	// retries every interval) and no response caching.
	probeCfg := cfg.Client
	probeCfg.MaxRetries = 0
	probeClient := client.New(probeCfg, nil)

	registry := gateway.NewRegistry(cfg.Gateway.Backends)
	checker := gateway.NewHealthChecker(registry, probeClient,
		cfg.Gateway.HealthInterval, cfg.Gateway.HealthProbesPerSecond)
	router := gateway.NewRouter(cfg.Gateway, registry, upstreamClient)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}
	tree.AddEdgeService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(checker)
	tree.AddMaintenanceService(services.NewCacheJanitorService(responseCache, cfg.Cache.CleanupInterval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Tidegate listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Shutdown complete")
}

// openStore selects the cache backend. The returned closer is a no-op
// for the in-memory store.
func openStore(cfg config.CacheConfig) (cache.Store, func(), error) {
	if cfg.Store == "badger" {
		badgerStore, err := cache.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := badgerStore.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing badger store")
			}
		}
		return badgerStore, closer, nil
	}
	return cache.NewMemoryStore(), func() {}, nil
}

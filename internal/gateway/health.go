// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package gateway

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/arcasadev/tidegate/internal/client"
	"github.com/arcasadev/tidegate/internal/logging"
)

// HealthChecker periodically probes every registered backend's /health
// endpoint through the resilient client and records the outcome in the
// registry. Probes are paced with a rate limiter so a large backend
// fleet does not produce a probe burst every interval.
type HealthChecker struct {
	registry *Registry
	client   *client.Client
	interval time.Duration
	limiter  *rate.Limiter
}

// NewHealthChecker builds a checker. The probe client should be
// configured without retries: the loop itself retries every interval,
// and a failed probe must mark the backend unhealthy promptly.
func NewHealthChecker(registry *Registry, probeClient *client.Client, interval time.Duration, probesPerSecond float64) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if probesPerSecond <= 0 {
		probesPerSecond = 10
	}
	return &HealthChecker{
		registry: registry,
		client:   probeClient,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(probesPerSecond), 1),
	}
}

// Serve runs the probe loop until ctx is cancelled. It satisfies the
// supervisor's service contract and probes once immediately so backend
// selection has data before the first interval elapses.
func (h *HealthChecker) Serve(ctx context.Context) error {
	h.probeAll(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.probeAll(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor event logs.
func (h *HealthChecker) String() string {
	return "backend-health-checker"
}

func (h *HealthChecker) probeAll(ctx context.Context) {
	for _, b := range h.registry.Backends() {
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}

		start := time.Now()
		_, err := h.client.Request(ctx, http.MethodGet, b.URL+"/health",
			&client.Options{DisableCache: true})
		elapsed := time.Since(start)

		healthy := err == nil
		h.registry.Record(b.Service, b.URL, healthy, elapsed)

		if !healthy && ctx.Err() == nil {
			logging.Warn().
				Str("service", b.Service).
				Str("url", b.URL).
				Dur("elapsed", elapsed).
				Err(err).
				Msg("Backend health probe failed")
		}
	}
}

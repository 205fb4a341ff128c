// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

// Package metrics defines the Prometheus collectors exported by Tidegate.
//
// Collectors are package-level promauto variables so any component can
// instrument itself without plumbing a registry through constructors. The
// default registry is served by the gateway's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resilient client metrics

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidegate_upstream_requests_total",
			Help: "Total upstream requests by method, origin, and outcome",
		},
		[]string{"method", "origin", "outcome"}, // outcome: "success", "http_error", "timeout", "network_error", "circuit_open"
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidegate_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds, including retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "origin"},
	)

	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidegate_upstream_retries_total",
			Help: "Total retry attempts by origin",
		},
		[]string{"origin"},
	)

	RequestsCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidegate_requests_coalesced_total",
			Help: "Requests that shared an already in-flight identical request",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidegate_circuit_breaker_state",
			Help: "Circuit breaker state per origin (0=closed, 1=half-open, 2=open)",
		},
		[]string{"origin"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidegate_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions per origin",
		},
		[]string{"origin", "from", "to"},
	)

	// Cache metrics

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidegate_cache_hits_total",
			Help: "Total cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidegate_cache_misses_total",
			Help: "Total cache misses, including expired and corrupt entries",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidegate_cache_evictions_total",
			Help: "Total entries removed by eviction, expiry, or cleanup",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidegate_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// Gateway metrics

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidegate_gateway_requests_total",
			Help: "Total gateway requests by service and status code",
		},
		[]string{"service", "status_code"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidegate_gateway_request_duration_seconds",
			Help:    "Gateway request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service"},
	)

	BackendHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidegate_backend_healthy",
			Help: "Backend health per service and URL (1=healthy, 0=unhealthy)",
		},
		[]string{"service", "url"},
	)

	BackendResponseTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidegate_backend_response_time_seconds",
			Help: "Last health probe response time per backend",
		},
		[]string{"service", "url"},
	)
)

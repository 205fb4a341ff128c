// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

// Package gateway routes portal API traffic to backend services with
// health-based load balancing on top of the resilient client.
package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/arcasadev/tidegate/internal/config"
	"github.com/arcasadev/tidegate/internal/metrics"
)

var (
	// ErrUnknownService is returned when no backend is registered under
	// the requested service name.
	ErrUnknownService = errors.New("gateway: unknown service")

	// ErrNoBackends is returned when a service is registered with an
	// empty URL list.
	ErrNoBackends = errors.New("gateway: no backends for service")
)

// Backend identifies one upstream URL of a logical service.
type Backend struct {
	Service string
	URL     string
}

// BackendStatus is the externally visible health of one backend,
// exposed on the gateway's health endpoint.
type BackendStatus struct {
	Service           string    `json:"service"`
	URL               string    `json:"url"`
	Healthy           bool      `json:"healthy"`
	ResponseTimeMs    float64   `json:"response_time_ms"`
	LastCheck         time.Time `json:"last_check,omitempty"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

type backendKey struct {
	service string
	url     string
}

type backendState struct {
	healthy           bool
	responseTime      time.Duration
	lastCheck         time.Time
	consecutiveErrors int
}

// Registry tracks backend services and their probed health. Selection
// prefers healthy backends with the lowest response time and falls back
// to round-robin when no backend is known to be healthy.
type Registry struct {
	mu       sync.Mutex
	services map[string][]string
	state    map[backendKey]*backendState
	rr       map[string]int
}

// NewRegistry builds a registry from configured backends. Backends start
// out unhealthy until the first probe records a result.
func NewRegistry(backends []config.BackendConfig) *Registry {
	r := &Registry{
		services: make(map[string][]string),
		state:    make(map[backendKey]*backendState),
		rr:       make(map[string]int),
	}
	for _, b := range backends {
		r.services[b.Service] = append(r.services[b.Service], b.URLs...)
		for _, u := range b.URLs {
			r.state[backendKey{b.Service, u}] = &backendState{}
		}
	}
	return r
}

// Backends returns every registered backend, all services combined.
func (r *Registry) Backends() []Backend {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Backend, 0, len(r.state))
	for service, urls := range r.services {
		for _, u := range urls {
			out = append(out, Backend{Service: service, URL: u})
		}
	}
	return out
}

// Select picks a backend URL for the service. Healthy backends win, the
// one with the lowest probed response time first; when none is healthy
// the pick rotates round-robin over all registered URLs so a recovering
// backend still sees traffic.
func (r *Registry) Select(service string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, ok := r.services[service]
	if !ok {
		return "", ErrUnknownService
	}
	if len(urls) == 0 {
		return "", ErrNoBackends
	}

	var best string
	var bestTime time.Duration
	for _, u := range urls {
		st := r.state[backendKey{service, u}]
		if st == nil || !st.healthy {
			continue
		}
		if best == "" || st.responseTime < bestTime {
			best, bestTime = u, st.responseTime
		}
	}
	if best != "" {
		return best, nil
	}

	i := r.rr[service]
	r.rr[service] = (i + 1) % len(urls)
	return urls[i%len(urls)], nil
}

// Record stores the outcome of a health probe. Consecutive errors reset
// on the first healthy probe.
func (r *Registry) Record(service, url string, healthy bool, responseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := backendKey{service, url}
	st, ok := r.state[key]
	if !ok {
		st = &backendState{}
		r.state[key] = st
		r.services[service] = append(r.services[service], url)
	}

	st.healthy = healthy
	st.responseTime = responseTime
	st.lastCheck = time.Now()
	if healthy {
		st.consecutiveErrors = 0
	} else {
		st.consecutiveErrors++
	}

	healthyVal := 0.0
	if healthy {
		healthyVal = 1
	}
	metrics.BackendHealthy.WithLabelValues(service, url).Set(healthyVal)
	metrics.BackendResponseTime.WithLabelValues(service, url).Set(responseTime.Seconds())
}

// Snapshot returns the current status of every backend, for the health
// endpoint. Order follows registration within each service.
func (r *Registry) Snapshot() []BackendStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BackendStatus, 0, len(r.state))
	for service, urls := range r.services {
		for _, u := range urls {
			st := r.state[backendKey{service, u}]
			if st == nil {
				continue
			}
			out = append(out, BackendStatus{
				Service:           service,
				URL:               u,
				Healthy:           st.healthy,
				ResponseTimeMs:    float64(st.responseTime) / float64(time.Millisecond),
				LastCheck:         st.lastCheck,
				ConsecutiveErrors: st.consecutiveErrors,
			})
		}
	}
	return out
}

// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/arcasadev/tidegate/internal/logging"
	"github.com/arcasadev/tidegate/internal/metrics"
)

// breakerRegistry holds one circuit breaker per request origin
// (scheme+host). Breakers are created lazily on first use.
//
// DETERMINISM NOTE: gobreaker uses wall time for its open-period
// bookkeeping. That is intentional for production resilience; tests
// exercise the cooldown with a shortened configured BreakerCooldown
// rather than a mocked clock.
type breakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*originBreaker
	threshold uint32
	cooldown  time.Duration
}

// originBreaker pairs a breaker with a flag tracking whether it is in
// half-open. gobreaker does not expose the state inside IsSuccessful
// (calling State there would deadlock on its internal mutex), so the
// flag is maintained from OnStateChange instead.
type originBreaker struct {
	cb       *gobreaker.CircuitBreaker[[]byte]
	halfOpen atomic.Bool
}

func newBreakerRegistry(threshold uint32, cooldown time.Duration) *breakerRegistry {
	if threshold == 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &breakerRegistry{
		breakers:  make(map[string]*originBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// forOrigin returns the breaker guarding the given origin, creating it
// on first use.
func (r *breakerRegistry) forOrigin(origin string) *gobreaker.CircuitBreaker[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ob, ok := r.breakers[origin]; ok {
		return ob.cb
	}

	metrics.CircuitBreakerState.WithLabelValues(origin).Set(0) // 0 = closed

	ob := &originBreaker{}
	ob.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        origin,
		MaxRequests: 1, // exactly one probe in half-open
		Timeout:     r.cooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= r.threshold
			if trip {
				logging.Warn().
					Str("origin", origin).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		// A caller-canceled request says nothing about origin health,
		// except in half-open: there the single probe must demonstrate
		// recovery, and a canceled probe demonstrated nothing, so it
		// counts as a failure and the circuit reopens.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) {
				return !ob.halfOpen.Load()
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			ob.halfOpen.Store(to == gobreaker.StateHalfOpen)
			logging.Info().
				Str("origin", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	r.breakers[origin] = ob
	return ob.cb
}

// state reports the current breaker state for an origin, or closed if no
// breaker exists yet.
func (r *breakerRegistry) state(origin string) gobreaker.State {
	r.mu.Lock()
	ob, ok := r.breakers[origin]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return ob.cb.State()
}

// stateToFloat maps breaker states onto the gauge encoding
// (0=closed, 1=half-open, 2=open).
func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

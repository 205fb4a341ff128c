// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package client

import (
	"math/rand/v2"
	"time"
)

// jitterFraction is the maximum random extension added to a backoff
// delay, as a fraction of the capped exponential delay. Jitter spreads
// retries from dashboards that all saw the same upstream failure at the
// same moment.
const jitterFraction = 0.3

// backoffDelay returns the wait before retry attempt n (0-indexed):
// base*2^n capped at max, plus up to 30% random jitter. With the 1s base
// and 10s cap the sequence is 1s, 2s, 4s, 8s, 10s, 10s, ... before jitter.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}

	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Float64() * jitterFraction * float64(delay))
	return delay + jitter
}

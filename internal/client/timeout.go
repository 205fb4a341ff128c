// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package client

import (
	"strings"
	"time"
)

// endpointClass buckets endpoints by their expected latency so that a
// health probe fails fast while an oceanographic query gets room to run.
type endpointClass int

const (
	classDefault endpointClass = iota
	classHealth
	classStatus
	classHeavy
)

// classifyEndpoint derives the endpoint class from the URL path.
func classifyEndpoint(path string) endpointClass {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "/health") || strings.Contains(p, "/ping"):
		return classHealth
	case strings.Contains(p, "/metrics") || strings.Contains(p, "/status"):
		return classStatus
	case strings.Contains(p, "/query") || strings.Contains(p, "/process") || strings.Contains(p, "/export"):
		return classHeavy
	default:
		return classDefault
	}
}

// classFactor scales the base timeout per endpoint class. With the 10s
// default base this yields 2s for health checks, 5s for metrics/status,
// and 30s for heavy query endpoints.
func (c endpointClass) factor() float64 {
	switch c {
	case classHealth:
		return 0.2
	case classStatus:
		return 0.5
	case classHeavy:
		return 3.0
	default:
		return 1.0
	}
}

// adaptiveTimeout computes the per-attempt deadline: the class-scaled
// base timeout, widened by 50% per retry attempt so a retried request is
// given progressively more time rather than repeating a deadline that
// already proved too tight.
func adaptiveTimeout(base time.Duration, class endpointClass, attempt int) time.Duration {
	scaled := float64(base) * class.factor()
	return time.Duration(scaled * (1 + 0.5*float64(attempt)))
}

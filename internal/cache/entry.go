// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package cache

import (
	"time"

	"github.com/goccy/go-json"
)

// Priority affects eviction order, never expiry. High-priority entries are
// the last candidates for eviction regardless of access recency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// weight returns the eviction score multiplier for the priority. High
// scores are evicted first, so the smallest multiplier deflates
// high-priority entries' scores and keeps them resident longest.
func (p Priority) weight() float64 {
	switch p {
	case PriorityHigh:
		return 0.3
	case PriorityLow:
		return 1.5
	default:
		return 1.0
	}
}

// Entry is the serialized form of one cached value. Timestamp and
// LastAccess are epoch milliseconds, TTL is milliseconds; the entry is
// stale once now - Timestamp > TTL.
type Entry struct {
	Key         string          `json:"key"`
	Data        json.RawMessage `json:"data"`
	Timestamp   int64           `json:"timestamp"`
	TTL         int64           `json:"ttl"`
	Priority    Priority        `json:"priority"`
	Tags        []string        `json:"tags,omitempty"`
	AccessCount int64           `json:"access_count"`
	LastAccess  int64           `json:"last_access"`
	Size        int64           `json:"size"`
}

// expired reports whether the entry is past its TTL at the given time.
func (e *Entry) expired(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp > e.TTL
}

// hasTag reports whether the entry carries the given tag.
func (e *Entry) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Options control how an entry is stored.
type Options struct {
	// TTL overrides the cache's default TTL when positive.
	TTL time.Duration

	// Priority defaults to PriorityNormal when empty.
	Priority Priority

	// Tags enable bulk invalidation via InvalidateByTag.
	Tags []string
}

// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package cache

import "time"

// evictionFraction is the share of entries removed per eviction pass.
const evictionFraction = 0.25

// minAgeHours floors the age used in frequency calculations so a
// just-written entry cannot divide by zero.
const minAgeHours = 1.0 / 3600.0

// evictionScore measures how evictable an entry is. Higher scores are
// evicted first:
//
//	score = idleTime * priorityWeight / (accessFrequency + 1)
//
// where idleTime is milliseconds since last access (falling back to the
// write time for never-read entries) and accessFrequency is accesses per
// hour of entry age. The priority weight (0.3 high, 1.0 normal, 1.5 low)
// shields high-priority entries and exposes low-priority ones.
func evictionScore(e *Entry, now time.Time) float64 {
	lastAccess := e.LastAccess
	if lastAccess == 0 {
		lastAccess = e.Timestamp
	}
	idleMs := float64(now.UnixMilli() - lastAccess)
	if idleMs < 0 {
		idleMs = 0
	}

	ageHours := float64(now.UnixMilli()-e.Timestamp) / float64(time.Hour.Milliseconds())
	if ageHours < minAgeHours {
		ageHours = minAgeHours
	}
	frequency := float64(e.AccessCount) / ageHours

	return idleMs * e.Priority.weight() / (frequency + 1)
}

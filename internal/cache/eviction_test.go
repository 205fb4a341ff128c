// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestEvictionBounds(t *testing.T) {
	// maxEntries divisible by 4 so the 25% batch is exact: filling to 8
	// and inserting one more evicts 2, leaving 6 + 1 = 7.
	const maxEntries = 8
	c, _ := newTestCache(t, Config{MaxEntries: maxEntries, DefaultTTL: time.Hour})

	for i := 0; i < maxEntries; i++ {
		if err := c.Set(fmt.Sprintf("k%d", i), i, Options{}); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != maxEntries {
		t.Fatalf("expected %d entries before overflow, got %d", maxEntries, c.Len())
	}

	if err := c.Set("overflow", "v", Options{}); err != nil {
		t.Fatal(err)
	}

	if c.Len() > maxEntries {
		t.Errorf("store exceeded maxEntries after Set: %d", c.Len())
	}
	if c.Len() < maxEntries*3/4 {
		t.Errorf("eviction dropped store below 0.75*maxEntries: %d", c.Len())
	}
	if c.Len() != 7 {
		t.Errorf("expected 7 entries after eviction + insert, got %d", c.Len())
	}
	if _, ok := c.Get("overflow"); !ok {
		t.Error("expected newly inserted entry to be present")
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	const maxEntries = 4
	c, _ := newTestCache(t, Config{MaxEntries: maxEntries, DefaultTTL: time.Hour})

	for i := 0; i < maxEntries; i++ {
		if err := c.Set(fmt.Sprintf("k%d", i), i, Options{}); err != nil {
			t.Fatal(err)
		}
	}

	// Overwriting an existing key at capacity must not trigger eviction.
	if err := c.Set("k0", "updated", Options{}); err != nil {
		t.Fatal(err)
	}
	if c.Len() != maxEntries {
		t.Errorf("expected %d entries after overwrite, got %d", maxEntries, c.Len())
	}
}

func TestEvictionSparesHighPriority(t *testing.T) {
	const maxEntries = 8
	c, clock := newTestCache(t, Config{MaxEntries: maxEntries, DefaultTTL: time.Hour})

	// Four low-priority and four high-priority entries, written at the
	// same instant and never read, so priority is the only signal.
	for i := 0; i < 4; i++ {
		if err := c.Set(fmt.Sprintf("low%d", i), i, Options{Priority: PriorityLow}); err != nil {
			t.Fatal(err)
		}
		if err := c.Set(fmt.Sprintf("high%d", i), i, Options{Priority: PriorityHigh}); err != nil {
			t.Fatal(err)
		}
	}

	*clock = clock.Add(10 * time.Minute)
	if err := c.Set("overflow", "v", Options{}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if _, ok := c.Get(fmt.Sprintf("high%d", i)); !ok {
			t.Errorf("high-priority entry high%d was evicted before low-priority ones", i)
		}
	}
	lowSurvivors := 0
	for i := 0; i < 4; i++ {
		if _, ok := c.Get(fmt.Sprintf("low%d", i)); ok {
			lowSurvivors++
		}
	}
	if lowSurvivors != 2 {
		t.Errorf("expected exactly 2 low-priority survivors, got %d", lowSurvivors)
	}
}

func TestEvictionPrefersIdleEntries(t *testing.T) {
	const maxEntries = 4
	c, clock := newTestCache(t, Config{MaxEntries: maxEntries, DefaultTTL: time.Hour})

	for i := 0; i < maxEntries; i++ {
		if err := c.Set(fmt.Sprintf("k%d", i), i, Options{}); err != nil {
			t.Fatal(err)
		}
	}

	// Touch every entry except k0, then age the cache.
	*clock = clock.Add(5 * time.Minute)
	for i := 1; i < maxEntries; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Fatal("expected hit while warming entries")
		}
	}
	*clock = clock.Add(5 * time.Minute)

	if err := c.Set("overflow", "v", Options{}); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("k0"); ok {
		t.Error("expected the idle, never-read entry to be evicted first")
	}
	for i := 1; i < maxEntries; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("expected recently read k%d to survive", i)
		}
	}
}

func TestEvictionScoreFormula(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	base := now.Add(-2 * time.Hour)

	entry := &Entry{
		Timestamp:   base.UnixMilli(),
		LastAccess:  now.Add(-time.Hour).UnixMilli(),
		AccessCount: 4,
		Priority:    PriorityNormal,
	}

	// idle = 1h in ms; frequency = 4 accesses / 2h age = 2/h.
	idleMs := float64(time.Hour.Milliseconds())
	want := idleMs * 1.0 / (2.0 + 1.0)
	if got := evictionScore(entry, now); got != want {
		t.Errorf("evictionScore = %f, want %f", got, want)
	}

	// High priority deflates the score, low priority inflates it.
	entry.Priority = PriorityHigh
	if got := evictionScore(entry, now); got != want*0.3 {
		t.Errorf("high priority score = %f, want %f", got, want*0.3)
	}
	entry.Priority = PriorityLow
	if got := evictionScore(entry, now); got != want*1.5 {
		t.Errorf("low priority score = %f, want %f", got, want*1.5)
	}
}

func TestEvictionScoreFreshEntry(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		Timestamp: now.UnixMilli(),
		Priority:  PriorityNormal,
	}
	// A just-written, never-read entry must score finite and non-negative.
	if got := evictionScore(entry, now); got < 0 {
		t.Errorf("expected non-negative score, got %f", got)
	}
}

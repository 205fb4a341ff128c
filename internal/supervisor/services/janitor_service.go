// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package services

import (
	"context"
	"time"

	"github.com/arcasadev/tidegate/internal/logging"
)

// CleanupCache is the slice of the cache API the janitor needs.
// Satisfied by *cache.Cache.
type CleanupCache interface {
	Cleanup() (int, error)
}

// CacheJanitorService periodically sweeps expired entries out of the
// cache so a durable store does not accumulate dead keys between reads.
// It sweeps once at startup and then on every interval.
type CacheJanitorService struct {
	cache    CleanupCache
	interval time.Duration
}

// NewCacheJanitorService creates the janitor. A non-positive interval
// defaults to 10 minutes.
func NewCacheJanitorService(c CleanupCache, interval time.Duration) *CacheJanitorService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheJanitorService{cache: c, interval: interval}
}

// Serve implements suture.Service.
func (j *CacheJanitorService) Serve(ctx context.Context) error {
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *CacheJanitorService) sweep() {
	removed, err := j.cache.Cleanup()
	if err != nil {
		logging.Error().Err(err).Msg("Cache cleanup sweep failed")
		return
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("Cache cleanup sweep completed")
	}
}

// String implements fmt.Stringer for supervisor event logs.
func (j *CacheJanitorService) String() string {
	return "cache-janitor"
}

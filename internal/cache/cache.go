// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

// Package cache implements the portal's intelligent cache: TTL expiry,
// tag-based bulk invalidation, and bounded size with score-based eviction
// that weighs recency, access frequency, and entry priority.
//
// Entries are serialized into a pluggable Store (memory or BadgerDB) under
// a fixed key prefix, so the durability of the cache is a property of the
// chosen store, not of the cache itself. A corrupt or expired stored entry
// is indistinguishable from an absent one: Get removes it and reports a
// miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/arcasadev/tidegate/internal/logging"
	"github.com/arcasadev/tidegate/internal/metrics"
)

// keyPrefix namespaces cache entries inside the backing store.
const keyPrefix = "tidegate:cache:"

// Config holds cache tuning parameters.
type Config struct {
	// MaxEntries bounds the entry count. Reaching it triggers eviction
	// of the lowest-scoring quarter before the next insert.
	MaxEntries int

	// DefaultTTL applies when Options.TTL is zero.
	DefaultTTL time.Duration
}

// Stats is a point-in-time snapshot of cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	HitRate   float64
}

// Cache is a TTL cache with tag invalidation over a backing Store.
// All exported methods are safe for concurrent use. The cache assumes it
// is the only writer of its key prefix within the store.
type Cache struct {
	store Store
	cfg   Config

	mu        sync.Mutex
	count     int
	hits      int64
	misses    int64
	evictions int64

	// now is replaceable in tests to simulate clock advancement.
	now func() time.Time

	sf singleflight.Group
}

// New creates a cache over the given store. The entry count is recovered
// from the store so a durable store resumes where it left off.
func New(store Store, cfg Config) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}

	c := &Cache{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}

	keys, err := store.Keys()
	if err != nil {
		return nil, fmt.Errorf("cache: enumerate store: %w", err)
	}
	for _, k := range keys {
		if strings.HasPrefix(k, keyPrefix) {
			c.count++
		}
	}
	metrics.CacheEntries.Set(float64(c.count))

	return c, nil
}

// Set serializes data and stores it under key, evicting first if the
// cache is full and key is not already present.
func (c *Cache) Set(key string, data interface{}, opts Options) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache: marshal data for %q: %w", key, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	exists := c.existsLocked(key)
	if !exists && c.count >= c.cfg.MaxEntries {
		c.evictLocked(now)
	}

	entry := Entry{
		Key:       key,
		Data:      payload,
		Timestamp: now.UnixMilli(),
		TTL:       ttl.Milliseconds(),
		Priority:  priority,
		Tags:      opts.Tags,
		Size:      int64(len(payload)),
	}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry for %q: %w", key, err)
	}

	if err := c.store.SetItem(keyPrefix+key, raw); err != nil {
		return fmt.Errorf("cache: store %q: %w", key, err)
	}
	if !exists {
		c.count++
		metrics.CacheEntries.Set(float64(c.count))
	}
	return nil
}

// Get returns the cached data for key. A missing, corrupt, or expired
// entry reports a miss; corrupt and expired entries are removed. A hit
// bumps the entry's access count and last-access time.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.loadLocked(key)
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	now := c.now()
	if entry.expired(now) {
		c.removeLocked(key)
		c.misses++
		c.evictions++
		metrics.CacheMisses.Inc()
		metrics.CacheEvictions.Inc()
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccess = now.UnixMilli()
	if raw, err := json.Marshal(entry); err == nil {
		// Best effort; a failed bookkeeping write must not fail the read.
		if err := c.store.SetItem(keyPrefix+key, raw); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("cache access bookkeeping write failed")
		}
	}

	c.hits++
	metrics.CacheHits.Inc()
	return entry.Data, true
}

// GetInto unmarshals the cached data for key into v.
// Returns false on any miss or if the data does not fit v.
func (c *Cache) GetInto(key string, v interface{}) bool {
	raw, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("cached data does not match requested shape")
		return false
	}
	return true
}

// GetOrSet returns the cached value for key when fresh, otherwise calls
// fetch, stores its result under opts, and returns it. A fetch error
// propagates to the caller and nothing is cached. Concurrent calls for
// the same key share a single fetch.
func (c *Cache) GetOrSet(ctx context.Context, key string, fetch func(ctx context.Context) (interface{}, error), opts Options) (json.RawMessage, error) {
	if raw, ok := c.Get(key); ok {
		return raw, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Another caller may have populated the key while we waited.
		if raw, ok := c.Get(key); ok {
			return raw, nil
		}

		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, data, opts); err != nil {
			return nil, err
		}
		raw, ok := c.Get(key)
		if !ok {
			// Entry was evicted between Set and Get; fall back to the
			// fetched value directly.
			b, err := json.Marshal(data)
			return json.RawMessage(b), err
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Invalidate removes a single entry. Removing an absent key is a no-op.
func (c *Cache) Invalidate(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.existsLocked(key) {
		return nil
	}
	return c.removeLocked(key)
}

// InvalidateByTag removes every entry whose tag set contains tag and
// returns the number removed.
func (c *Cache) InvalidateByTag(tag string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.entryKeysLocked()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		entry, ok := c.loadLocked(key)
		if !ok {
			continue
		}
		if entry.hasTag(tag) {
			if err := c.removeLocked(key); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Cleanup removes expired and corrupt entries, returning the number
// removed. The janitor runs it once at startup and on a fixed interval.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.entryKeysLocked()
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0
	for _, key := range keys {
		entry, ok := c.loadLocked(key)
		if !ok {
			// loadLocked already removed the corrupt entry.
			removed++
			continue
		}
		if entry.expired(now) {
			if err := c.removeLocked(key); err != nil {
				return removed, err
			}
			c.evictions++
			metrics.CacheEvictions.Inc()
			removed++
		}
	}
	return removed, nil
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// GetStats returns a snapshot of the cache performance counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.count,
		HitRate:   rate,
	}
}

// existsLocked reports raw presence in the store without freshness checks.
func (c *Cache) existsLocked(key string) bool {
	_, err := c.store.GetItem(keyPrefix + key)
	return err == nil
}

// loadLocked reads and parses an entry. A corrupt entry is removed and
// reported as absent; the parse failure never surfaces to callers.
func (c *Cache) loadLocked(key string) (*Entry, bool) {
	raw, err := c.store.GetItem(keyPrefix + key)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("cache store read failed")
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("removing corrupt cache entry")
		_ = c.removeLocked(key)
		return nil, false
	}
	return &entry, true
}

// removeLocked deletes an entry and maintains the count.
func (c *Cache) removeLocked(key string) error {
	if err := c.store.RemoveItem(keyPrefix + key); err != nil {
		return fmt.Errorf("cache: remove %q: %w", key, err)
	}
	if c.count > 0 {
		c.count--
	}
	metrics.CacheEntries.Set(float64(c.count))
	return nil
}

// entryKeysLocked lists the logical keys of all entries in the store.
func (c *Cache) entryKeysLocked() ([]string, error) {
	storeKeys, err := c.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("cache: enumerate store: %w", err)
	}
	keys := make([]string, 0, len(storeKeys))
	for _, k := range storeKeys {
		if strings.HasPrefix(k, keyPrefix) {
			keys = append(keys, strings.TrimPrefix(k, keyPrefix))
		}
	}
	return keys, nil
}

// evictLocked removes the lowest-scoring quarter of the cache, rounded
// up. The scoring is a hybrid of recency, access frequency, and priority
// rather than pure LRU, so rarely-refreshed high-priority reference data
// (bathymetry grids, species taxonomies) survives bursts of transient
// dashboard queries.
func (c *Cache) evictLocked(now time.Time) {
	keys, err := c.entryKeysLocked()
	if err != nil {
		logging.Warn().Err(err).Msg("eviction scan failed")
		return
	}

	type scored struct {
		key   string
		score float64
	}
	candidates := make([]scored, 0, len(keys))
	for _, key := range keys {
		entry, ok := c.loadLocked(key)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{key: key, score: evictionScore(entry, now)})
	}
	if len(candidates) == 0 {
		return
	}

	// Highest evictability first. The weight table (high 0.3, low 1.5)
	// deflates the score of high-priority entries, so sorting descending
	// is what actually spares them.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	batch := int(math.Ceil(float64(len(candidates)) * evictionFraction))
	if batch < 1 {
		batch = 1
	}
	for _, victim := range candidates[:batch] {
		if err := c.removeLocked(victim.key); err != nil {
			logging.Warn().Err(err).Str("key", victim.key).Msg("eviction remove failed")
			continue
		}
		c.evictions++
		metrics.CacheEvictions.Inc()
	}

	logging.Debug().
		Int("removed", batch).
		Int("remaining", c.count).
		Msg("cache eviction completed")
}

// Package cache provides the short-TTL response cache used to memoize
// orchestrated context responses.
//
// Keys are derived from the normalized query text, the strategy name and a
// coarse time bucket, so identical near-simultaneous requests collapse onto
// one entry. The cache is sharded: each shard carries its own lock and LRU
// bookkeeping, so concurrent requests touching different keys never serialize
// behind a single global lock.
//
// Example usage:
//
//	c := cache.New[string](cache.Config{MaxEntries: 256})
//	c.Put(cache.Key("what changed?", "immediate", 5*time.Minute), "...", time.Minute)
//	v, ok := c.Get(key)
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// shardCount is fixed; 16 shards keeps lock contention negligible at the
// request rates a single assistant session produces.
const shardCount = 16

// Key derives a cache key from the normalized query, strategy name and a
// coarse time bucket. Two requests inside the same bucket share a key.
func Key(query, strategyName string, bucket time.Duration) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	window := int64(0)
	if bucket > 0 {
		window = time.Now().UnixNano() / int64(bucket)
	}

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strategyName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(window, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Config holds cache tunables.
type Config struct {
	// MaxEntries bounds the total entry count; least-recently-used entries
	// are evicted beyond it.
	MaxEntries int

	// SweepInterval is the period of the background eviction sweep started
	// by Run.
	SweepInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    512,
		SweepInterval: time.Minute,
	}
}

type entry[V any] struct {
	value        V
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
}

// Cache is a sharded in-memory cache with per-entry TTL and LRU eviction.
type Cache[V any] struct {
	shards     [shardCount]*shard[V]
	maxEntries int
	sweepEvery time.Duration
	metrics    *Metrics
}

// New creates a cache with the given config.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	perShard := cfg.MaxEntries / shardCount
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache[V]{
		maxEntries: cfg.MaxEntries,
		sweepEvery: cfg.SweepInterval,
	}
	for i := range c.shards {
		c.shards[i] = newShard[V](perShard)
	}
	return c
}

// SetMetrics attaches the metrics tracker. Optional.
func (c *Cache[V]) SetMetrics(m *Metrics) {
	c.metrics = m
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get retrieves a live entry. Expired entries are removed on access and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.shardFor(key).get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.RecordHit()
		} else {
			c.metrics.RecordMiss()
		}
	}
	return v, ok
}

// Put stores value under key for ttl. An existing entry is replaced; a full
// shard evicts its least-recently-used entry first.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.shardFor(key).put(key, value, ttl)
	if c.metrics != nil {
		c.metrics.SetSize(c.Len())
	}
}

// Delete removes an entry. No-op when absent.
func (c *Cache[V]) Delete(key string) {
	c.shardFor(key).delete(key)
	if c.metrics != nil {
		c.metrics.SetSize(c.Len())
	}
}

// Len returns the current entry count across all shards.
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.len()
	}
	return n
}

// MaxEntries returns the configured capacity.
func (c *Cache[V]) MaxEntries() int {
	return c.maxEntries
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	for _, s := range c.shards {
		s.purge()
	}
	if c.metrics != nil {
		c.metrics.SetSize(0)
	}
}

// Run starts the background eviction sweep and blocks until ctx is
// cancelled. The sweep drops expired entries so a rarely-read cache does not
// pin dead responses until the next Get.
func (c *Cache[V]) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := 0
			for _, s := range c.shards {
				removed += s.sweep()
			}
			if c.metrics != nil && removed > 0 {
				c.metrics.RecordSwept(removed)
				c.metrics.SetSize(c.Len())
			}
		}
	}
}

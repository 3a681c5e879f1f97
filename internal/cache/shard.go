package cache

import (
	"sync"
	"time"
)

// shard is one lock domain of the cache.
type shard[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*entry[V]
	maxEntries int
}

func newShard[V any](maxEntries int) *shard[V] {
	return &shard[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: maxEntries,
	}
}

func (s *shard[V]) get(key string) (V, bool) {
	var zero V

	now := time.Now()
	s.mu.RLock()
	e, ok := s.entries[key]
	expired := ok && now.After(e.expiresAt)
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if expired {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent put may have
		// refreshed the entry.
		if cur, ok := s.entries[key]; ok && now.After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return zero, false
	}

	s.mu.Lock()
	e.lastAccessed = now
	value := e.value
	s.mu.Unlock()
	return value, true
}

func (s *shard[V]) put(key string, value V, ttl time.Duration) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLRU()
	}

	s.entries[key] = &entry[V]{
		value:        value,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

func (s *shard[V]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *shard[V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *shard[V]) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry[V])
}

// sweep removes expired entries and returns how many were dropped.
func (s *shard[V]) sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// evictLRU removes the least recently used entry. Caller holds the write
// lock.
func (s *shard[V]) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, e := range s.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessed
			first = false
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

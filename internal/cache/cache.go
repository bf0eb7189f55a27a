// Package cache defines the non-authoritative read cache consulted around
// repository reads. A miss, an outage, or a disabled cache must all be
// transparent: the system behaves identically, only slower.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is the interface the repository consults. Implementations must
// never block the caller on failure.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	Stats() Stats
}

// Stats reports cache effectiveness for the health surface.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a TTL-bound in-process cache.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewMemory creates an in-memory cache with the given TTL and entry bound.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{entries: make(map[string]entry), ttl: ttl, maxEntries: maxEntries}
}

// Get returns the cached value when present and unexpired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return e.value, true
}

// Set stores value under key. When the cache is full, expired entries are
// dropped first; if still full the write is skipped rather than evicting
// live entries, since the cache is never authoritative.
func (m *Memory) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.maxEntries {
		now := time.Now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		if len(m.entries) >= m.maxEntries {
			return
		}
	}
	m.entries[key] = entry{value: value, expiresAt: time.Now().Add(m.ttl)}
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Stats returns hit/miss counters and the live entry count.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	n := len(m.entries)
	m.mu.Unlock()
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Entries: n}
}

// Disabled is the always-miss cache used when caching is turned off.
type Disabled struct{}

func (Disabled) Get(string) ([]byte, bool) { return nil, false }
func (Disabled) Set(string, []byte)        {}
func (Disabled) Delete(string)             {}
func (Disabled) Stats() Stats              { return Stats{} }

// Package cache provides caching implementations for Bastion check results.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/bastion"
)

// Compile-time interface check.
var _ bastion.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration and a size cap.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	result    *bastion.CheckResult
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the default entry time-to-live, used when Set receives a
// non-positive TTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached check result.
func (m *Memory) Get(_ context.Context, userID, itemName string) (*bastion.CheckResult, bool) {
	key := cacheKey(userID, itemName)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	// Callers own the returned result; never hand out the stored one.
	result := *e.result
	return &result, true
}

// Set stores a check result in the cache.
func (m *Memory) Set(_ context.Context, userID, itemName string, result *bastion.CheckResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	key := cacheKey(userID, itemName)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	stored := *result
	m.entries[key] = &entry{
		result:    &stored,
		expiresAt: time.Now().Add(ttl),
	}
}

// InvalidateUser removes all cached results for a user.
func (m *Memory) InvalidateUser(_ context.Context, userID string) {
	prefix := userID + ":"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

// Purge removes all cached results.
func (m *Memory) Purge(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
}

func cacheKey(userID, itemName string) string {
	return userID + ":" + itemName
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}

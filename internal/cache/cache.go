package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a small key/value store with per-key TTL.
type Cache interface {
	// Get returns ErrMiss when the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; a ttl of 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local Cache used when no Redis URL is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns the value stored under key, dropping it if it has expired.
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set stores value under key with an optional ttl.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.entries[key] = entry
	m.sweep()
	return nil
}

// Delete removes key.
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Ping always succeeds.
func (m *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryCache) Close() error {
	return nil
}

// sweep drops expired entries; callers hold m.mu.
func (m *MemoryCache) sweep() {
	now := m.now()
	for key, entry := range m.entries {
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			delete(m.entries, key)
		}
	}
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type presenceEntry[V any] struct {
	value   V
	expires time.Time
}

func (e presenceEntry[V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// InMemoryPresenceCache keeps last-seen values in process memory. With a
// non-zero TTL entries disappear once it elapses, as they do in Redis.
type InMemoryPresenceCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]presenceEntry[V]
	ttl     time.Duration
}

// NewInMemoryPresenceCache creates a cache whose entries live for ttl. A
// zero ttl keeps them until deleted.
func NewInMemoryPresenceCache[K comparable, V any](ttl time.Duration) *InMemoryPresenceCache[K, V] {
	return &InMemoryPresenceCache[K, V]{
		entries: make(map[K]presenceEntry[V]),
		ttl:     ttl,
	}
}

// Set stores value under key and restarts its TTL. Expired entries are
// swept on the way.
func (c *InMemoryPresenceCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.sweepLocked(now)

	entry := presenceEntry[V]{value: value}
	if c.ttl > 0 {
		entry.expires = now.Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}

// Fetch returns the value for key. Missing and expired keys wrap ErrNotFound.
func (c *InMemoryPresenceCache[K, V]) Fetch(_ context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok && entry.expired(time.Now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	return entry.value, nil
}

// Delete forgets key.
func (c *InMemoryPresenceCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len counts the live entries.
func (c *InMemoryPresenceCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(time.Now())
	return len(c.entries)
}

func (c *InMemoryPresenceCache[K, V]) sweepLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

// Close releases nothing; it exists to satisfy PresenceCache.
func (c *InMemoryPresenceCache[K, V]) Close() error {
	return nil
}

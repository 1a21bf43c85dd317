// Package cache provides the generic caches used for device address books
// and learned device profiles.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Fetch when a key has no value.
var ErrNotFound = errors.New("key not found in cache")

// PresenceCache holds ephemeral, last-seen state such as a device's current
// address. It has no source of truth to fall back on, so values are written
// and removed explicitly.
type PresenceCache[K comparable, V any] interface {
	// Set explicitly stores a value for a key.
	Set(ctx context.Context, key K, value V) error
	// Fetch retrieves a value by its key. A miss wraps ErrNotFound.
	Fetch(ctx context.Context, key K) (V, error)
	// Delete explicitly removes a key.
	Delete(ctx context.Context, key K) error
	// Closer is included for implementations that manage network connections.
	io.Closer
}

// Fetcher loads a value on a cache miss.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Fetch calls f.
func (f FetcherFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

// Close is a no-op.
func (f FetcherFunc[K, V]) Close() error { return nil }

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lastSeen struct {
	Address string
	Port    int
}

func TestInMemoryPresenceCache(t *testing.T) {
	ctx := context.Background()
	const serial = "NK6-EU-MHA0000A"
	home := lastSeen{Address: "192.168.1.20", Port: 1883}

	t.Run("unknown serial is not found", func(t *testing.T) {
		book := cache.NewInMemoryPresenceCache[string, lastSeen](0)

		_, err := book.Fetch(ctx, "unknown-serial")

		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("address is replaced then forgotten", func(t *testing.T) {
		// Arrange
		book := cache.NewInMemoryPresenceCache[string, lastSeen](0)
		moved := lastSeen{Address: "192.168.1.44", Port: 1883}
		require.NoError(t, book.Set(ctx, serial, home))

		// Act
		require.NoError(t, book.Set(ctx, serial, moved))
		got, err := book.Fetch(ctx, serial)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, moved, got)
		assert.Equal(t, 1, book.Len())

		require.NoError(t, book.Delete(ctx, serial))
		_, err = book.Fetch(ctx, serial)
		assert.ErrorIs(t, err, cache.ErrNotFound)
		assert.Zero(t, book.Len())
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		book := cache.NewInMemoryPresenceCache[string, lastSeen](50 * time.Millisecond)
		require.NoError(t, book.Set(ctx, serial, home))

		got, err := book.Fetch(ctx, serial)
		require.NoError(t, err)
		assert.Equal(t, home, got)

		assert.Eventually(t, func() bool {
			_, err := book.Fetch(ctx, serial)
			return err != nil
		}, time.Second, 10*time.Millisecond)
		assert.Zero(t, book.Len())
	})

	t.Run("set refreshes the ttl", func(t *testing.T) {
		book := cache.NewInMemoryPresenceCache[string, lastSeen](200 * time.Millisecond)
		require.NoError(t, book.Set(ctx, serial, home))

		time.Sleep(120 * time.Millisecond)
		require.NoError(t, book.Set(ctx, serial, home))
		time.Sleep(120 * time.Millisecond)

		_, err := book.Fetch(ctx, serial)
		assert.NoError(t, err)
	})
}

func TestFetcherFunc(t *testing.T) {
	f := cache.FetcherFunc[string, int](func(ctx context.Context, key string) (int, error) {
		return len(key), nil
	})
	v, err := f.Fetch(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.NoError(t, f.Close())
}

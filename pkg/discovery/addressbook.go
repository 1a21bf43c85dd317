package discovery

import (
	"context"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/cache"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// AddressBookKeyPrefix namespaces discovery records in a shared store.
const AddressBookKeyPrefix = "dysonlocal:discovery:"

// AddressBook persists the last known address per serial.
type AddressBook = cache.PresenceCache[string, types.DiscoveryRecord]

// NewAddressBook returns a Redis-backed book when redisCfg is set and an
// in-memory one otherwise. Entries live for ttl unless redisCfg sets its own.
func NewAddressBook(ctx context.Context, ttl time.Duration, redisCfg *cache.RedisConfig, logger zerolog.Logger) (AddressBook, error) {
	if redisCfg == nil {
		return cache.NewInMemoryPresenceCache[string, types.DiscoveryRecord](ttl), nil
	}
	if redisCfg.KeyPrefix == "" {
		redisCfg.KeyPrefix = AddressBookKeyPrefix
	}
	if redisCfg.CacheTTL == 0 {
		redisCfg.CacheTTL = ttl
	}
	book, err := cache.NewRedisPresenceCache[string, types.DiscoveryRecord](ctx, redisCfg, logger)
	if err != nil {
		return nil, err
	}
	return book, nil
}

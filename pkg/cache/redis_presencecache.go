package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key, e.g. "dysonlocal:address:".
	KeyPrefix string
	// CacheTTL expires entries; zero keeps them until deleted.
	CacheTTL time.Duration
}

// Env constants for the Redis address book.
const (
	RedisAddr       = "DYSON_REDIS_ADDR"
	RedisPassword   = "DYSON_REDIS_PASSWORD"
	RedisDB         = "DYSON_REDIS_DB"
	RedisTTLSeconds = "DYSON_REDIS_TTL_SECONDS"
)

// LoadRedisConfigFromEnv returns nil when DYSON_REDIS_ADDR is unset.
func LoadRedisConfigFromEnv(keyPrefix string) *RedisConfig {
	addr := os.Getenv(RedisAddr)
	if addr == "" {
		return nil
	}
	cfg := &RedisConfig{Addr: addr, Password: os.Getenv(RedisPassword), KeyPrefix: keyPrefix}
	if db, err := strconv.Atoi(os.Getenv(RedisDB)); err == nil {
		cfg.DB = db
	}
	if ttl := os.Getenv(RedisTTLSeconds); ttl != "" {
		if d, err := time.ParseDuration(ttl + "s"); err == nil {
			cfg.CacheTTL = d
		}
	}
	return cfg
}

// RedisPresenceCache is a PresenceCache shared between hosts through Redis.
type RedisPresenceCache[K comparable, V any] struct {
	redisClient redis.UniversalClient
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
}

// NewRedisPresenceCache dials cfg.Addr and fails unless the server answers
// a PING within ctx.
func NewRedisPresenceCache[K comparable, V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisPresenceCache[K, V], error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis presence cache needs an address")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis presence cache at %s: %w", cfg.Addr, err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Int("db", cfg.DB).Msg("Address book shared through Redis.")

	return NewRedisPresenceCacheFromClient[K, V](rdb, cfg.KeyPrefix, cfg.CacheTTL, logger), nil
}

// NewRedisPresenceCacheFromClient wraps an existing client. Keys are
// stored as prefix+fmt.Sprint(key) and expire ttl after each Set.
func NewRedisPresenceCacheFromClient[K comparable, V any](client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger) *RedisPresenceCache[K, V] {
	return &RedisPresenceCache[K, V]{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisPresenceCache").Str("prefix", prefix).Logger(),
		ttl:         ttl,
		prefix:      prefix,
	}
}

func (c *RedisPresenceCache[K, V]) redisKey(key K) string {
	return c.prefix + fmt.Sprint(key)
}

// Set stores value as JSON. A write restarts the key's TTL.
func (c *RedisPresenceCache[K, V]) Set(ctx context.Context, key K, value V) error {
	rk := c.redisKey(key)
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("presence %s: encode: %w", rk, err)
	}
	if err := c.redisClient.Set(ctx, rk, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("presence %s: write: %w", rk, err)
	}
	c.logger.Debug().Str("key", rk).Dur("ttl", c.ttl).Msg("Stored presence entry.")
	return nil
}

// Fetch returns the stored value. Missing and expired keys wrap ErrNotFound.
func (c *RedisPresenceCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var value V
	rk := c.redisKey(key)
	raw, err := c.redisClient.Get(ctx, rk).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return value, fmt.Errorf("%w: %s", ErrNotFound, rk)
	case err != nil:
		return value, fmt.Errorf("presence %s: read: %w", rk, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		// Undecodable entries read as misses.
		c.logger.Warn().Err(err).Str("key", rk).Msg("Discarding undecodable presence entry.")
		return value, fmt.Errorf("%w: %s: %v", ErrNotFound, rk, err)
	}
	return value, nil
}

// Delete forgets key. Deleting a missing key is not an error.
func (c *RedisPresenceCache[K, V]) Delete(ctx context.Context, key K) error {
	rk := c.redisKey(key)
	if err := c.redisClient.Del(ctx, rk).Err(); err != nil {
		return fmt.Errorf("presence %s: delete: %w", rk, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisPresenceCache[K, V]) Close() error {
	if c.redisClient == nil {
		return nil
	}
	return c.redisClient.Close()
}

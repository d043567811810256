package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/metrics"
)

// Cache is the key/value store behind CachedSource.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedSource wraps a Source with a read-through cache. Only successful
// prices are cached; failures always go back to the primary source. Cache
// errors are logged and fall through to the primary.
type CachedSource struct {
	primary Source
	cache   Cache
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, cache Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{
		primary: primary,
		cache:   cache,
		ttl:     ttl,
	}
}

func (s *CachedSource) Lookup(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := quoteKey(symbol)

	// Try cache.
	v, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("quote cache read failed", "symbol", symbol, "err", err)
	case found:
		price, err := decimal.NewFromString(v)
		if err == nil && price.IsPositive() {
			metrics.QuoteCacheHits.Inc()
			return price, nil
		}
	}

	// Cache miss: ask the primary.
	price, err := s.primary.Lookup(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.cache.Set(ctx, key, price.String(), s.ttl); err != nil {
		slog.Warn("quote cache write failed", "symbol", symbol, "err", err)
	}
	return price, nil
}

func quoteKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }

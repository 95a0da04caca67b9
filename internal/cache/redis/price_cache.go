package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// PriceCache implements domain.PriceCache using plain string keys with a TTL.
// The TTL keeps retries within one backoff window from re-fetching upstream
// while guaranteeing a due call never settles on a stale quote from a
// previous cycle.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(pairAddress string) string {
	return "price:" + pairAddress
}

// Set stores the pair's latest observed price for the cache TTL.
func (pc *PriceCache) Set(ctx context.Context, pairAddress string, price float64) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := pc.rdb.Set(ctx, priceKey(pairAddress), val, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", pairAddress, err)
	}
	return nil
}

// Get returns the cached price, or ok=false when none is cached.
func (pc *PriceCache) Get(ctx context.Context, pairAddress string) (float64, bool, error) {
	val, err := pc.rdb.Get(ctx, priceKey(pairAddress)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: get price %s: %w", pairAddress, err)
	}

	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse cached price %s: %w", pairAddress, err)
	}
	return price, true, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)

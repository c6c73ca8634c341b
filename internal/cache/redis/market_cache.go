package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcusleung/memecast/internal/domain"
)

// MarketCache implements domain.MarketCache as a JSON-per-key cache with a
// TTL. It is strictly cache-aside: a miss is not an error, and every market
// mutation must invalidate its key.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache with the given entry TTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(id string) string {
	return "market:" + id
}

// Get returns the cached market and whether it was present.
func (mc *MarketCache) Get(ctx context.Context, marketID string) (domain.Market, bool, error) {
	data, err := mc.rdb.Get(ctx, marketKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, false, nil
		}
		return domain.Market{}, false, fmt.Errorf("redis: get market %s: %w", marketID, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt entry behaves like a miss; the caller refills it.
		return domain.Market{}, false, nil
	}
	return m, true, nil
}

// Set stores a market snapshot under its id.
func (mc *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(m.ID), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ID, err)
	}
	return nil
}

// Invalidate drops the cached snapshot for a market.
func (mc *MarketCache) Invalidate(ctx context.Context, marketID string) error {
	if err := mc.rdb.Del(ctx, marketKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)

// Package stockcache fronts the ledger's derived available-stock reads with
// a short-TTL Redis mirror. The ledger stays the source of truth: every
// value here is re-derivable, and on any cache trouble reads fall back to
// the ledger. Cache errors are logged, never returned.
package stockcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
)

// Reader is the ledger-side recompute. *ledger.Ledger satisfies it.
type Reader interface {
	AvailableStock(ctx context.Context, listingID string) (int, error)
}

type Cache struct {
	Redis  *redis.Client
	Source Reader
	TTL    time.Duration
}

func New(rdb *redis.Client, src Reader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = redisx.TTLStockCache
	}
	return &Cache{Redis: rdb, Source: src, TTL: ttl}
}

// GetAvailable is read-through: hit serves from Redis, miss recomputes from
// the ledger and stores with TTL. A Redis failure degrades to a direct
// ledger read with a warning.
func (c *Cache) GetAvailable(ctx context.Context, listingID string) (int, error) {
	key := fmt.Sprintf(redisx.KeyStockAvail, listingID)

	v, err := c.Redis.Get(ctx, key).Int()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("listing_id", listingID).Msg("stock cache unavailable, reading ledger")
	}

	v, err = c.Source.AvailableStock(ctx, listingID)
	if err != nil {
		return 0, err
	}
	if serr := c.Redis.Set(ctx, key, v, c.TTL).Err(); serr != nil {
		log.Warn().Err(serr).Str("listing_id", listingID).Msg("stock cache populate failed")
	}
	return v, nil
}

// Invalidate drops the cached entries. Callers run this synchronously after
// every stock mutation, before reporting success, so a writer's own next
// read never sees the stale higher value. Never fails the caller.
func (c *Cache) Invalidate(ctx context.Context, listingIDs ...string) {
	if len(listingIDs) == 0 {
		return
	}
	keys := make([]string, len(listingIDs))
	for i, id := range listingIDs {
		keys[i] = fmt.Sprintf(redisx.KeyStockAvail, id)
	}
	if err := c.Redis.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Strs("listing_ids", listingIDs).Msg("stock cache invalidate failed")
	}
}

// Set force-writes a recomputed value. The sweeper uses this during
// reconciliation.
func (c *Cache) Set(ctx context.Context, listingID string, available int) {
	key := fmt.Sprintf(redisx.KeyStockAvail, listingID)
	if err := c.Redis.Set(ctx, key, available, c.TTL).Err(); err != nil {
		log.Warn().Err(err).Str("listing_id", listingID).Msg("stock cache set failed")
	}
}

package stockcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
)

type stubReader struct {
	avail map[string]int
	calls int
}

func (s *stubReader) AvailableStock(ctx context.Context, listingID string) (int, error) {
	s.calls++
	v, ok := s.avail[listingID]
	if !ok {
		return 0, market.ErrListingNotFound
	}
	return v, nil
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis, *stubReader) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	src := &stubReader{avail: map[string]int{}}
	return New(rdb, src, 10*time.Second), mr, src
}

func TestReadThrough(t *testing.T) {
	c, mr, src := newTestCache(t)
	src.avail["lst-1"] = 7

	// miss: computed from the ledger and stored
	v, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, src.calls)

	key := fmt.Sprintf(redisx.KeyStockAvail, "lst-1")
	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "7", stored)
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	// hit: ledger untouched even after the source changed
	src.avail["lst-1"] = 3
	v, err = c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, src.calls)
}

func TestTTLExpiryRecomputes(t *testing.T) {
	c, mr, src := newTestCache(t)
	src.avail["lst-1"] = 7

	_, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)

	src.avail["lst-1"] = 3
	mr.FastForward(11 * time.Second)

	v, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c, _, src := newTestCache(t)
	src.avail["lst-1"] = 7

	_, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)

	src.avail["lst-1"] = 5
	c.Invalidate(context.Background(), "lst-1")

	v, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 5, v, "a reader after invalidation must see ledger truth")
}

func TestRedisDownFallsBackToLedger(t *testing.T) {
	c, mr, src := newTestCache(t)
	src.avail["lst-1"] = 4
	mr.Close()

	v, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	// invalidation against a dead cache must not panic or error the caller
	c.Invalidate(context.Background(), "lst-1")
}

func TestUnknownListingPropagates(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, err := c.GetAvailable(context.Background(), "nope")
	assert.ErrorIs(t, err, market.ErrListingNotFound)
}

func TestSetOverwrites(t *testing.T) {
	c, mr, src := newTestCache(t)
	src.avail["lst-1"] = 9

	c.Set(context.Background(), "lst-1", 2)
	v, err := c.GetAvailable(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	key := fmt.Sprintf(redisx.KeyStockAvail, "lst-1")
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

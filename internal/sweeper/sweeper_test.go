package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
)

type fakeFinder struct {
	batches [][]string
	snap    []ledger.ListingStock
	snapErr error
}

func (f *fakeFinder) FindExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeFinder) StockSnapshot(ctx context.Context) ([]ledger.ListingStock, error) {
	return f.snap, f.snapErr
}

type fakeExpirer struct {
	mu      sync.Mutex
	expired []string
	failOn  map[string]bool
	noopOn  map[string]bool
}

func (f *fakeExpirer) Expire(ctx context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[orderID] {
		return false, errors.New("db timeout")
	}
	if f.noopOn[orderID] {
		return false, nil
	}
	f.expired = append(f.expired, orderID)
	return true, nil
}

type fakeCacheWriter struct {
	set map[string]int
}

func (f *fakeCacheWriter) Set(ctx context.Context, listingID string, available int) {
	if f.set == nil {
		f.set = map[string]int{}
	}
	f.set[listingID] = available
}

func newTestSweeper(f *fakeFinder, e *fakeExpirer, c *fakeCacheWriter) *Sweeper {
	s := New(f, e, c, time.Second)
	s.Batch = 3
	return s
}

func TestSweepExpiresAllCandidates(t *testing.T) {
	finder := &fakeFinder{batches: [][]string{{"ord-1", "ord-2", "ord-3"}, {"ord-4"}}}
	expirer := &fakeExpirer{}
	sw := newTestSweeper(finder, expirer, &fakeCacheWriter{})

	sw.Sweep(context.Background())

	assert.ElementsMatch(t, []string{"ord-1", "ord-2", "ord-3", "ord-4"}, expirer.expired)
}

func TestOneFailingOrderDoesNotBlockTheRest(t *testing.T) {
	finder := &fakeFinder{batches: [][]string{{"ord-1", "ord-2", "ord-3"}}}
	expirer := &fakeExpirer{failOn: map[string]bool{"ord-2": true}}
	sw := newTestSweeper(finder, expirer, &fakeCacheWriter{})

	sw.Sweep(context.Background())

	assert.ElementsMatch(t, []string{"ord-1", "ord-3"}, expirer.expired)
}

func TestAlreadyHandledOrdersAreQuietNoops(t *testing.T) {
	// an order paid between FindExpired and Expire loses its candidacy
	finder := &fakeFinder{batches: [][]string{{"ord-1", "ord-2"}}}
	expirer := &fakeExpirer{noopOn: map[string]bool{"ord-1": true}}
	sw := newTestSweeper(finder, expirer, &fakeCacheWriter{})

	sw.Sweep(context.Background())

	assert.Equal(t, []string{"ord-2"}, expirer.expired)
}

func TestReconcileRewritesCacheFromLedger(t *testing.T) {
	finder := &fakeFinder{
		snap: []ledger.ListingStock{
			{ListingID: "lst-1", Total: 10, Reserved: 4},
			{ListingID: "lst-2", Total: 2, Reserved: 2},
		},
	}
	cache := &fakeCacheWriter{}
	sw := newTestSweeper(finder, &fakeExpirer{}, cache)

	sw.Sweep(context.Background())

	assert.Equal(t, map[string]int{"lst-1": 6, "lst-2": 0}, cache.set)
}

func TestReconcileClampsNegativeAvailability(t *testing.T) {
	finder := &fakeFinder{
		snap: []ledger.ListingStock{{ListingID: "lst-1", Total: 3, Reserved: 5}},
	}
	cache := &fakeCacheWriter{}
	sw := newTestSweeper(finder, &fakeExpirer{}, cache)

	sw.Sweep(context.Background())

	// never advertise negative stock, even while the ledger is inconsistent
	assert.Equal(t, 0, cache.set["lst-1"])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sw := newTestSweeper(&fakeFinder{}, &fakeExpirer{}, &fakeCacheWriter{})
	sw.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

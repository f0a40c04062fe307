// Package sweeper reclaims reservations from orders whose payment window
// has elapsed, and periodically resyncs cached availability against the
// ledger. One failing order never blocks the rest of a pass.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
)

const defaultBatch = 200

type Expirer interface {
	Expire(ctx context.Context, orderID string) (bool, error)
}

type Finder interface {
	FindExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	StockSnapshot(ctx context.Context) ([]ledger.ListingStock, error)
}

type CacheWriter interface {
	Set(ctx context.Context, listingID string, available int)
}

type Sweeper struct {
	Finder   Finder
	Expirer  Expirer
	Cache    CacheWriter
	Interval time.Duration
	Batch    int

	now func() time.Time
}

func New(f Finder, e Expirer, c CacheWriter, interval time.Duration) *Sweeper {
	return &Sweeper{
		Finder:   f,
		Expirer:  e,
		Cache:    c,
		Interval: interval,
		Batch:    defaultBatch,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Each tick
// drains expired orders in batches, then reconciles the stock cache.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.Interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Exposed for the debug endpoint and tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		sweepDuration.Observe(time.Since(start).Seconds())
		sweepRuns.Inc()
	}()

	for {
		ids, err := s.Finder.FindExpired(ctx, s.now(), s.Batch)
		if err != nil {
			log.Error().Err(err).Msg("expired order lookup failed")
			sweepErrors.Inc()
			return
		}
		if len(ids) == 0 {
			break
		}
		expired := 0
		for _, id := range ids {
			changed, err := s.Expirer.Expire(ctx, id)
			if err != nil {
				log.Error().Err(err).Str("order_id", id).Msg("expire failed")
				sweepErrors.Inc()
				continue
			}
			if changed {
				expired++
			}
		}
		ordersExpired.Add(float64(expired))
		if expired > 0 {
			log.Info().Int("expired", expired).Int("candidates", len(ids)).Msg("sweep batch done")
		}
		if len(ids) < s.Batch {
			break
		}
	}

	s.reconcile(ctx)
}

// reconcile rewrites the cached availability of every listing with live
// reservations from ledger truth, flagging listings that have gone
// negative (which means an invariant was broken somewhere upstream).
func (s *Sweeper) reconcile(ctx context.Context) {
	snap, err := s.Finder.StockSnapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("stock snapshot failed")
		sweepErrors.Inc()
		return
	}
	for _, row := range snap {
		avail := row.Total - row.Reserved
		if avail < 0 {
			integrityViolations.Inc()
			log.Error().Str("listing_id", row.ListingID).
				Int("total", row.Total).Int("reserved", row.Reserved).
				Msg("negative derived availability")
			avail = 0
		}
		s.Cache.Set(ctx, row.ListingID, avail)
		stockResynced.Inc()
	}
}

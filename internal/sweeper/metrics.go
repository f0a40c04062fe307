package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "Number of completed sweep passes.",
	})
	ordersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_orders_expired_total",
		Help: "Orders cancelled because their payment window elapsed.",
	})
	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_errors_total",
		Help: "Per-order expiry attempts that returned an error.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_pass_duration_seconds",
		Help:    "Wall time of a single sweep pass.",
		Buckets: prometheus.DefBuckets,
	})
	stockResynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_stock_resynced_total",
		Help: "Listings whose cached availability was rewritten by reconciliation.",
	})
	integrityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_integrity_violations_total",
		Help: "Listings observed with negative derived availability.",
	})
)

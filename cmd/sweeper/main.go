package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-market-reservations.git/internal/config"
	"github.com/ariefcatur/go-market-reservations.git/internal/engine"
	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
	"github.com/ariefcatur/go-market-reservations.git/internal/postgres"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
	"github.com/ariefcatur/go-market-reservations.git/internal/stockcache"
	"github.com/ariefcatur/go-market-reservations.git/internal/sweeper"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start()

	led := &ledger.Ledger{DB: db}
	cache := stockcache.New(rdb, led, cfg.StockCacheTTL)
	// the sweeper expires through the engine so cache invalidation and
	// order.expired events ride along; no gateway involvement on expiry
	eng := engine.New(led, cache, nil, prod, cfg.ServiceName+"-sweeper", cfg.PaymentWindow)
	sw := sweeper.New(led, eng, cache, cfg.SweepInterval)

	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metrics.Close()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("sweeper exit")
	}
	prod.Close()
	prod.WaitClosed()
}

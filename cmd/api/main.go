package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/config"
	"github.com/ariefcatur/go-market-reservations.git/internal/engine"
	"github.com/ariefcatur/go-market-reservations.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
	"github.com/ariefcatur/go-market-reservations.git/internal/payments"
	"github.com/ariefcatur/go-market-reservations.git/internal/postgres"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
	"github.com/ariefcatur/go-market-reservations.git/internal/stockcache"
	"github.com/ariefcatur/go-market-reservations.git/internal/sweeper"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start()

	// Wiring
	led := &ledger.Ledger{DB: db}
	cache := stockcache.New(rdb, led, cfg.StockCacheTTL)
	gateway := payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	eng := engine.New(led, cache, gateway, prod, cfg.ServiceName, cfg.PaymentWindow)

	router := httpx.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	(&httpx.OrdersHandler{Engine: eng}).Register(router)
	(&httpx.ListingsHandler{Ledger: led, Engine: eng}).Register(router)
	(&httpx.CartHandler{Ledger: led}).Register(router)
	(&httpx.WebhookHandler{Verifier: gateway, Engine: eng, Redis: rdb}).Register(router)
	if cfg.DebugEndpoints {
		sw := sweeper.New(led, eng, cache, cfg.SweepInterval)
		(&httpx.DebugHandler{Ledger: led, Sweeper: sw}).Register(router)
		log.Warn().Msg("debug endpoints enabled")
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	prod.WaitClosed()
}

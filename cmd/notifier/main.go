package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/config"
	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
	"github.com/ariefcatur/go-market-reservations.git/internal/notifier"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")

	paid := kafkax.NewConsumer(cfg.KafkaBrokers, group, market.TopicOrderPaid, workers)
	expired := kafkax.NewConsumer(cfg.KafkaBrokers, group, market.TopicOrderExpired, workers)

	go func() {
		log.Info().Str("group", group).Str("topic", market.TopicOrderPaid).Msg("consumer started")
		if err := paid.Start(ctx, svc.HandleOrderPaid); err != nil {
			log.Error().Err(err).Msg("paid consumer exit")
			cancel()
		}
	}()
	go func() {
		log.Info().Str("group", group).Str("topic", market.TopicOrderExpired).Msg("consumer started")
		if err := expired.Start(ctx, svc.HandleOrderExpired); err != nil {
			log.Error().Err(err).Msg("expired consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumers")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

// Package notifier consumes order lifecycle events and fans them out as
// buyer notifications. Delivery here is a structured log line standing in
// for the mail provider; the dedup and decode pipeline is the real part.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderPaid notifies the buyer that payment settled. Duplicate
// deliveries of the same event are dropped on the event_id.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	env, fresh, err := s.decode(ctx, m)
	if err != nil || !fresh {
		return err
	}
	p, err := kafkax.UnwrapPayload[market.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}
	log.Info().Str("order_id", p.OrderID).Int64("amount_cents", p.AmountCents).
		Msg("payment receipt notification sent")
	return nil
}

// HandleOrderExpired tells the buyer their unpaid order was cancelled.
func (s *Service) HandleOrderExpired(ctx context.Context, m kafkago.Message) error {
	env, fresh, err := s.decode(ctx, m)
	if err != nil || !fresh {
		return err
	}
	p, err := kafkax.UnwrapPayload[market.OrderExpiredPayload](env.Payload)
	if err != nil {
		return err
	}
	log.Info().Str("order_id", p.OrderID).Int("items", len(p.Items)).
		Msg("order expired notification sent")
	return nil
}

// decode unmarshals the envelope and claims the event_id in redis. fresh is
// false when another worker already processed this event.
func (s *Service) decode(ctx context.Context, m kafkago.Message) (*market.Envelope, bool, error) {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		log.Error().Err(err).Str("topic", m.Topic).Msg("undecodable event dropped")
		return nil, false, nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, key, 1, redisx.TTLDedup).Result()
	if err != nil {
		return nil, false, err
	}
	return &env, fresh, nil
}

package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{Redis: rdb, ServiceName: "test-notifier"}
}

func paidMessage(eventID string) kafkago.Message {
	env := market.Envelope{
		EventID:      eventID,
		EventType:    market.EventOrderPaid,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test-api",
		Payload: kafkax.MustMarshal(market.OrderPaidPayload{
			OrderID: "ord-1", PaymentRef: "pi_1", AmountCents: 5000,
		}),
	}
	return kafkago.Message{Topic: market.TopicOrderPaid, Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderPaid(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.HandleOrderPaid(context.Background(), paidMessage("evt-1")))
}

func TestDuplicateEventsAreDropped(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.HandleOrderPaid(ctx, paidMessage("evt-1")))
	// same event_id again: handled without error, not re-delivered
	require.NoError(t, s.HandleOrderPaid(ctx, paidMessage("evt-1")))
	// a new event_id goes through
	require.NoError(t, s.HandleOrderPaid(ctx, paidMessage("evt-2")))
}

func TestPoisonMessagesAreCommitted(t *testing.T) {
	s := newTestService(t)
	m := kafkago.Message{Topic: market.TopicOrderPaid, Value: []byte("not json")}

	// nil means the consumer commits the offset and moves past the message
	assert.NoError(t, s.HandleOrderPaid(context.Background(), m))
}

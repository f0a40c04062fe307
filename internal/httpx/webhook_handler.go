package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
	"github.com/ariefcatur/go-market-reservations.git/internal/payments"
	"github.com/ariefcatur/go-market-reservations.git/internal/redisx"
)

const maxWebhookBody = 1 << 16 // Stripe caps event payloads well below this

type Verifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (*payments.WebhookEvent, error)
}

type Confirmer interface {
	ConfirmPayment(ctx context.Context, orderID, paymentRef string) error
}

type WebhookHandler struct {
	Verifier Verifier
	Engine   Confirmer
	Redis    *redis.Client
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhook/stripe", h.stripe)
}

// stripe handles gateway callbacks. Always answers 2xx for verified events
// we cannot act on (unknown order, stale state), so the gateway stops
// retrying; 400 is reserved for unverifiable payloads.
func (h *WebhookHandler) stripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable body")
		return
	}

	event, err := h.Verifier.VerifyWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature rejected")
		writeErr(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// first-writer-wins dedup on the event id; replays short-circuit here
	dedupKey := fmt.Sprintf(redisx.KeyWebhookEvent, event.EventID)
	fresh, err := h.Redis.SetNX(ctx, dedupKey, 1, redisx.TTLWebhook).Result()
	if err != nil {
		// redis being down must not drop payments; ConfirmPayment is
		// idempotent so we process anyway
		log.Warn().Err(err).Str("event_id", event.EventID).Msg("webhook dedup unavailable")
	} else if !fresh {
		w.WriteHeader(http.StatusOK)
		return
	}

	if event.Type != "payment_intent.succeeded" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.OrderID == "" {
		log.Warn().Str("event_id", event.EventID).Msg("payment event without order metadata")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.Engine.ConfirmPayment(ctx, event.OrderID, event.PaymentRef); err != nil {
		switch {
		case errors.Is(err, market.ErrStaleTransition):
			// late payment, already reversed by the engine
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, market.ErrOrderNotFound), errors.Is(err, market.ErrPaymentMismatch):
			log.Warn().Err(err).Str("order_id", event.OrderID).Msg("webhook references unknown payment")
			w.WriteHeader(http.StatusOK)
		default:
			// transient failure: free the dedup slot so the retry can run
			_ = h.Redis.Del(ctx, dedupKey).Err()
			writeDomainErr(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Package payments wraps the external Stripe collaborator. The engine only
// sees intents, reversals and verified webhook events; Stripe types stay in
// here.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

// GatewayError marks a payment collaborator failure. Idempotent operations
// (Reverse) may be retried; others surface to the caller.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

type StripeGateway struct {
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

// EnsureIntent returns a payment intent for the order, reusing the stored
// one when its amount still matches and no payment method was attached yet.
func (g *StripeGateway) EnsureIntent(ctx context.Context, o *market.Order) (intentID, clientSecret string, err error) {
	if o.IntentID != "" {
		pi, err := paymentintent.Get(o.IntentID, nil)
		if err == nil &&
			pi.Amount == o.TotalCents &&
			pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			return pi.ID, pi.ClientSecret, nil
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(o.TotalCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.AddMetadata("order_id", o.ID)
	params.AddMetadata("buyer_id", o.BuyerID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", "", &GatewayError{Op: "create_intent", Err: err}
	}
	return pi.ID, pi.ClientSecret, nil
}

// Reverse undoes whatever the intent captured: refund when the charge
// succeeded, cancel when it is still confirmable, no-op otherwise. An
// "already refunded" answer counts as success, which keeps the operation
// idempotent.
func (g *StripeGateway) Reverse(ctx context.Context, intentID string) error {
	pi, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return &GatewayError{Op: "retrieve_intent", Err: err}
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		_, err := refund.New(&stripe.RefundParams{PaymentIntent: stripe.String(intentID)})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already been refunded") {
				return nil
			}
			return &GatewayError{Op: "refund", Err: err}
		}
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation:
		if _, err := paymentintent.Cancel(intentID, nil); err != nil {
			return &GatewayError{Op: "cancel_intent", Err: err}
		}
	}
	return nil
}

// WebhookEvent is a verified, engine-shaped view of an incoming callback.
type WebhookEvent struct {
	EventID    string
	Type       string
	OrderID    string
	PaymentRef string
}

// VerifyWebhook checks the Stripe-Signature header against the shared
// secret before trusting anything in the payload. Unverified payloads are
// rejected here and never reach the engine.
func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		return nil, &GatewayError{Op: "verify_webhook", Err: err}
	}

	out := &WebhookEvent{EventID: event.ID, Type: string(event.Type)}
	if event.Type == "payment_intent.succeeded" {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, &GatewayError{Op: "decode_webhook", Err: err}
		}
		out.PaymentRef = pi.ID
		out.OrderID = pi.Metadata["order_id"]
	}
	return out, nil
}

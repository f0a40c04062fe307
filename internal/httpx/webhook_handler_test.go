package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
	"github.com/ariefcatur/go-market-reservations.git/internal/payments"
)

type fakeVerifier struct {
	event *payments.WebhookEvent
	err   error
}

func (f *fakeVerifier) VerifyWebhook(payload []byte, sig string) (*payments.WebhookEvent, error) {
	return f.event, f.err
}

type fakeConfirmer struct {
	calls []string
	err   error
}

func (f *fakeConfirmer) ConfirmPayment(ctx context.Context, orderID, paymentRef string) error {
	f.calls = append(f.calls, orderID)
	return f.err
}

func newWebhookFixture(t *testing.T, v *fakeVerifier, c *fakeConfirmer) *WebhookHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &WebhookHandler{Verifier: v, Engine: c, Redis: rdb}
}

func postWebhook(h *WebhookHandler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	h.stripe(rec, req)
	return rec
}

func paidEvent(id string) *payments.WebhookEvent {
	return &payments.WebhookEvent{
		EventID:    id,
		Type:       "payment_intent.succeeded",
		OrderID:    "ord-1",
		PaymentRef: "pi_1",
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	confirmer := &fakeConfirmer{}
	h := newWebhookFixture(t, &fakeVerifier{err: errors.New("bad signature")}, confirmer)

	rec := postWebhook(h)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, confirmer.calls, "unverified payloads must never reach the engine")
}

func TestWebhookConfirmsPayment(t *testing.T) {
	confirmer := &fakeConfirmer{}
	h := newWebhookFixture(t, &fakeVerifier{event: paidEvent("evt-1")}, confirmer)

	rec := postWebhook(h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ord-1"}, confirmer.calls)
}

func TestWebhookDeduplicatesReplays(t *testing.T) {
	confirmer := &fakeConfirmer{}
	h := newWebhookFixture(t, &fakeVerifier{event: paidEvent("evt-1")}, confirmer)

	assert.Equal(t, http.StatusOK, postWebhook(h).Code)
	assert.Equal(t, http.StatusOK, postWebhook(h).Code)
	assert.Len(t, confirmer.calls, 1, "replayed event id must be processed once")
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	confirmer := &fakeConfirmer{}
	h := newWebhookFixture(t, &fakeVerifier{event: &payments.WebhookEvent{
		EventID: "evt-1", Type: "payment_intent.created",
	}}, confirmer)

	rec := postWebhook(h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, confirmer.calls)
}

func TestWebhookAcksLatePayment(t *testing.T) {
	// the engine already reversed the charge; the gateway must stop retrying
	confirmer := &fakeConfirmer{err: market.ErrStaleTransition}
	h := newWebhookFixture(t, &fakeVerifier{event: paidEvent("evt-1")}, confirmer)

	assert.Equal(t, http.StatusOK, postWebhook(h).Code)
}

func TestWebhookAcksUnknownOrder(t *testing.T) {
	confirmer := &fakeConfirmer{err: market.ErrOrderNotFound}
	h := newWebhookFixture(t, &fakeVerifier{event: paidEvent("evt-1")}, confirmer)

	assert.Equal(t, http.StatusOK, postWebhook(h).Code)
}

func TestWebhookTransientErrorAllowsRetry(t *testing.T) {
	confirmer := &fakeConfirmer{err: errors.New("db down")}
	h := newWebhookFixture(t, &fakeVerifier{event: paidEvent("evt-1")}, confirmer)

	rec := postWebhook(h)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// the dedup slot was freed, so the gateway's retry can succeed
	confirmer.err = nil
	rec = postWebhook(h)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, confirmer.calls, 2)
}

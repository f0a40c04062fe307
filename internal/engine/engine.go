// Package engine drives the order lifecycle: cart to pending order with
// reservations, payment confirmation, timeout expiry, refunds and shipment.
// It orchestrates the ledger (the only writer of stock), the stock cache,
// the payment gateway and the event producer. State transitions themselves
// are guarded compare-and-sets inside the ledger, so confirm and expire
// racing on the same order resolve to exactly one winner.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-market-reservations.git/internal/kafka"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

type Ledger interface {
	CreateOrder(ctx context.Context, no market.NewOrder) (*market.Order, error)
	ConfirmOrder(ctx context.Context, orderID string) (bool, error)
	ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, []market.ItemQty, error)
	RefundOrder(ctx context.Context, orderID string) ([]market.ItemQty, error)
	MarkShipped(ctx context.Context, orderID, sellerID string, itemIDs []string, tracking string) ([]market.ItemQty, error)
	GetOrder(ctx context.Context, orderID string) (*market.Order, error)
	ListOrders(ctx context.Context, userID string, sellerView bool) ([]market.Order, error)
	SetOrderIntent(ctx context.Context, orderID, intentID string) error
	GetCart(ctx context.Context, userID string) (*market.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type StockCache interface {
	GetAvailable(ctx context.Context, listingID string) (int, error)
	Invalidate(ctx context.Context, listingIDs ...string)
}

type Gateway interface {
	EnsureIntent(ctx context.Context, o *market.Order) (intentID, clientSecret string, err error)
	Reverse(ctx context.Context, intentID string) error
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Buyer is the gateway-authenticated identity attached to checkout.
type Buyer struct {
	ID      string
	Email   string
	Address string
}

type Engine struct {
	Ledger        Ledger
	Cache         StockCache
	Gateway       Gateway
	Producer      Publisher
	Service       string
	PaymentWindow time.Duration

	now func() time.Time
}

func New(l Ledger, c StockCache, g Gateway, p Publisher, service string, window time.Duration) *Engine {
	return &Engine{
		Ledger:        l,
		Cache:         c,
		Gateway:       g,
		Producer:      p,
		Service:       service,
		PaymentWindow: window,
		now:           time.Now,
	}
}

// CreateOrder converts the buyer's cart into a pending order. All cart
// lines reserve or none do; the failing listing rides on the error. The
// payment intent is created after the reservations commit — if the gateway
// refuses, the freshly made order is cancelled again so no stock leaks.
func (e *Engine) CreateOrder(ctx context.Context, buyer Buyer) (*market.Order, string, error) {
	cart, err := e.Ledger.GetCart(ctx, buyer.ID)
	if err != nil {
		return nil, "", err
	}
	if len(cart.Items) == 0 {
		return nil, "", market.ErrCartEmpty
	}

	no := market.NewOrder{
		BuyerID:      buyer.ID,
		BuyerEmail:   buyer.Email,
		BuyerAddress: buyer.Address,
		ExpiresAt:    e.now().Add(e.PaymentWindow),
	}
	for _, it := range cart.Items {
		no.Lines = append(no.Lines, market.CheckoutLine{ListingID: it.ListingID, Quantity: it.Quantity})
	}

	order, err := e.Ledger.CreateOrder(ctx, no)
	if err != nil {
		return nil, "", err
	}
	e.Cache.Invalidate(ctx, listingIDs(order.Items)...)

	intentID, clientSecret, err := e.Gateway.EnsureIntent(ctx, order)
	if err != nil {
		// compensate: release the reservations through the expiry path,
		// passing the order's own deadline as "now" to satisfy the guard
		if _, released, cerr := e.Ledger.ExpireOrder(ctx, order.ID, order.ExpiresAt); cerr != nil {
			log.Error().Err(cerr).Str("order_id", order.ID).Msg("compensating cancel failed after gateway error")
		} else {
			e.Cache.Invalidate(ctx, qtyIDs(released)...)
		}
		return nil, "", err
	}
	if err := e.Ledger.SetOrderIntent(ctx, order.ID, intentID); err != nil {
		return nil, "", err
	}
	order.IntentID = intentID

	if err := e.Ledger.ClearCart(ctx, buyer.ID); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyer.ID).Msg("cart clear failed after checkout")
	}

	e.emit(market.EventOrderCreated, market.TopicOrderCreated, order.ID, market.OrderCreatedPayload{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		TotalCents: order.TotalCents,
		ExpiresAt:  order.ExpiresAt,
		Items:      toItemQtys(order.Items),
	})
	return order, clientSecret, nil
}

// GetOrder returns an order visible to the user (its buyer or one of its
// sellers). While payment is pending a fresh client secret is issued so an
// interrupted checkout can resume.
func (e *Engine) GetOrder(ctx context.Context, orderID, userID string) (*market.Order, string, error) {
	order, err := e.Ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if !visibleTo(order, userID) {
		return nil, "", market.ErrOrderNotFound
	}

	clientSecret := ""
	if order.Status == market.OrderPendingPayment && userID == order.BuyerID {
		intentID, secret, err := e.Gateway.EnsureIntent(ctx, order)
		if err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).Msg("intent reissue failed")
		} else {
			clientSecret = secret
			if intentID != order.IntentID {
				if err := e.Ledger.SetOrderIntent(ctx, order.ID, intentID); err != nil {
					return nil, "", err
				}
				order.IntentID = intentID
			}
		}
	}
	return order, clientSecret, nil
}

func (e *Engine) ListOrders(ctx context.Context, userID string, sellerView bool) ([]market.Order, error) {
	return e.Ledger.ListOrders(ctx, userID, sellerView)
}

// ConfirmPayment finalizes a paid order. Idempotent: a duplicate
// confirmation of an already PAID order is a no-op success. A confirmation
// arriving after expiry is rejected as a stale transition and the late
// payment is automatically reversed.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID, paymentRef string) error {
	order, err := e.Ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IntentID == "" || order.IntentID != paymentRef {
		return market.ErrPaymentMismatch
	}

	changed, err := e.Ledger.ConfirmOrder(ctx, orderID)
	if errors.Is(err, market.ErrStaleTransition) {
		log.Error().Str("order_id", orderID).Str("payment_ref", paymentRef).
			Msg("payment confirmed after order left pending state, reversing late payment")
		if rerr := e.reverseWithRetry(ctx, paymentRef); rerr != nil {
			log.Error().Err(rerr).Str("order_id", orderID).
				Msg("late payment reversal failed, operator action required")
		}
		return err
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil // duplicate confirmation
	}

	e.Cache.Invalidate(ctx, listingIDs(order.Items)...)
	e.emit(market.EventOrderPaid, market.TopicOrderPaid, orderID, market.OrderPaidPayload{
		OrderID:     orderID,
		PaymentRef:  paymentRef,
		AmountCents: order.TotalCents,
	})
	return nil
}

// Expire cancels a pending order past its payment window and returns its
// stock to availability. Safe to call concurrently and repeatedly.
func (e *Engine) Expire(ctx context.Context, orderID string) (bool, error) {
	changed, released, err := e.Ledger.ExpireOrder(ctx, orderID, e.now())
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	e.Cache.Invalidate(ctx, qtyIDs(released)...)
	e.emit(market.EventOrderExpired, market.TopicOrderExpired, orderID, market.OrderExpiredPayload{
		OrderID: orderID,
		Items:   released,
	})
	log.Info().Str("order_id", orderID).Int("listings", len(released)).Msg("order expired, reservations released")
	return true, nil
}

// Refund reverses the payment and releases the reservations as one unit:
// the local release only commits after the gateway reversal succeeded. On
// gateway failure the order stays PAID and the caller may retry.
func (e *Engine) Refund(ctx context.Context, orderID, requesterID string) error {
	order, err := e.Ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.BuyerID != requesterID {
		return market.ErrOrderNotFound
	}
	if order.Status != market.OrderPaid {
		return market.ErrNotRefundable
	}
	for _, it := range order.Items {
		if it.State.Shipped() {
			return market.ErrItemShipped
		}
	}

	if err := e.reverseWithRetry(ctx, order.IntentID); err != nil {
		return err
	}

	released, err := e.Ledger.RefundOrder(ctx, orderID)
	if err != nil {
		// money is reversed but stock is not released yet; loud log, the
		// reconciliation sweep will surface the listing-level mismatch
		log.Error().Err(err).Str("order_id", orderID).Msg("refund applied at gateway but ledger release failed")
		return err
	}

	e.Cache.Invalidate(ctx, qtyIDs(released)...)
	e.emit(market.EventOrderRefunded, market.TopicOrderRefunded, orderID, market.OrderRefundedPayload{
		OrderID:     orderID,
		PaymentRef:  order.IntentID,
		AmountCents: order.TotalCents,
	})
	return nil
}

// MarkShipped moves the seller's named items into transit with a tracking
// code. Requires the order to be PAID.
func (e *Engine) MarkShipped(ctx context.Context, orderID, sellerID string, itemIDs []string, tracking string) (int, error) {
	shipped, err := e.Ledger.MarkShipped(ctx, orderID, sellerID, itemIDs, tracking)
	if err != nil {
		return 0, err
	}
	if len(shipped) > 0 {
		e.Cache.Invalidate(ctx, qtyIDs(shipped)...)
	}
	return len(shipped), nil
}

// AvailableStock serves listing pages: cache-backed, ledger-true.
func (e *Engine) AvailableStock(ctx context.Context, listingID string) (int, error) {
	return e.Cache.GetAvailable(ctx, listingID)
}

// reverseWithRetry retries the idempotent gateway reversal with a short
// backoff before giving up.
func (e *Engine) reverseWithRetry(ctx context.Context, intentID string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if err = e.Gateway.Reverse(ctx, intentID); err == nil {
			return nil
		}
		log.Warn().Err(err).Str("intent_id", intentID).Int("attempt", attempt+1).Msg("payment reversal failed")
	}
	return err
}

func (e *Engine) emit(eventType, topic, orderID string, payload any) {
	if e.Producer == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	e.Producer.Publish(topic, market.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func visibleTo(o *market.Order, userID string) bool {
	if o.BuyerID == userID {
		return true
	}
	for _, it := range o.Items {
		if it.SellerID == userID {
			return true
		}
	}
	return false
}

func listingIDs(items []market.OrderItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ListingID)
	}
	return out
}

func qtyIDs(qs []market.ItemQty) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ListingID)
	}
	return out
}

func toItemQtys(items []market.OrderItem) []market.ItemQty {
	out := make([]market.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, market.ItemQty{ListingID: it.ListingID, Qty: it.Quantity})
	}
	return out
}

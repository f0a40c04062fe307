// Package ledger is the authoritative store for listings, orders and
// reservations. Every stock-changing operation runs inside one pgx
// transaction; the listing row lock (SELECT ... FOR UPDATE) is the
// serialization point for concurrent reservations. When an operation spans
// multiple listings the locks are taken in ascending listing id to avoid
// lock-order cycles.
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

type Ledger struct{ DB *pgxpool.Pool }

// lockListing locks the listing row and returns the fields checkout needs.
// Reserved stock is recomputed under the lock, so available = total - reserved
// is exact for the duration of the transaction.
func lockListing(ctx context.Context, tx pgx.Tx, listingID string) (sellerID, title string, priceCents int64, total, reserved int, active bool, err error) {
	err = tx.QueryRow(ctx, `
		SELECT seller_id, title, price_cents, total_quantity, is_active
		FROM listings WHERE id=$1 FOR UPDATE`, listingID).
		Scan(&sellerID, &title, &priceCents, &total, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", 0, 0, 0, false, market.ErrListingNotFound
	}
	if err != nil {
		return "", "", 0, 0, 0, false, err
	}
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM order_items
		WHERE listing_id=$1 AND state IN ('PENDING','CONFIRMED')`, listingID).
		Scan(&reserved)
	return sellerID, title, priceCents, total, reserved, active, err
}

// CreateOrder converts cart lines into an order plus PENDING reservations,
// all-or-nothing. If any line lacks stock the whole transaction rolls back
// and the error names the failing listing.
func (l *Ledger) CreateOrder(ctx context.Context, no market.NewOrder) (*market.Order, error) {
	if len(no.Lines) == 0 {
		return nil, market.ErrCartEmpty
	}

	lines := make([]market.CheckoutLine, len(no.Lines))
	copy(lines, no.Lines)
	// fixed lock order across listings
	sort.Slice(lines, func(i, j int) bool { return lines[i].ListingID < lines[j].ListingID })

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	order := &market.Order{
		ID:           uuid.NewString(),
		BuyerID:      no.BuyerID,
		Status:       market.OrderPendingPayment,
		BuyerEmail:   no.BuyerEmail,
		BuyerAddress: no.BuyerAddress,
		ExpiresAt:    no.ExpiresAt,
	}

	for _, line := range lines {
		sellerID, title, price, total, reserved, active, err := lockListing(ctx, tx, line.ListingID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, market.ErrListingNotFound
		}
		if sellerID == no.BuyerID {
			return nil, market.ErrOwnListing
		}

		available := total - reserved
		if available < line.Quantity {
			if available < 0 {
				available = 0
			}
			return nil, &market.InsufficientStockError{
				ListingID: line.ListingID,
				Requested: line.Quantity,
				Available: available,
			}
		}

		if available == line.Quantity {
			if _, err := tx.Exec(ctx, `
				UPDATE listings SET status='OUT_OF_STOCK', updated_at=now()
				WHERE id=$1`, line.ListingID); err != nil {
				return nil, err
			}
		}

		item := market.OrderItem{
			ID:                   uuid.NewString(),
			OrderID:              order.ID,
			ListingID:            line.ListingID,
			SellerID:             sellerID,
			Quantity:             line.Quantity,
			State:                market.ItemPending,
			SnapshotListingTitle: title,
			SnapshotPriceCents:   price,
		}
		order.Items = append(order.Items, item)
		order.TotalCents += price * int64(line.Quantity)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, total_cents, status, buyer_email, buyer_address, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		order.ID, order.BuyerID, order.TotalCents, order.Status,
		order.BuyerEmail, order.BuyerAddress, order.ExpiresAt); err != nil {
		return nil, err
	}

	for _, it := range order.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, listing_id, seller_id, quantity, state,
			                        snapshot_listing_title, snapshot_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.OrderID, it.ListingID, it.SellerID, it.Quantity, it.State,
			it.SnapshotListingTitle, it.SnapshotPriceCents); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmOrder moves a pending order to PAID and its reservations to
// CONFIRMED. Returns changed=false when the order is already PAID (duplicate
// confirmation, a no-op). Confirming an expired or refunded order is a stale
// transition.
func (l *Ledger) ConfirmOrder(ctx context.Context, orderID string) (bool, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status='PAID' WHERE id=$1 AND status='PENDING_PAYMENT'`, orderID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		status, err := orderStatus(ctx, tx, orderID)
		if err != nil {
			return false, err
		}
		if status == market.OrderPaid {
			return false, nil
		}
		return false, market.ErrStaleTransition
	}

	if _, err := tx.Exec(ctx, `
		UPDATE order_items SET state='CONFIRMED' WHERE order_id=$1 AND state='PENDING'`, orderID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ExpireOrder cancels a pending order past its payment window and releases
// its reservations. The compare-and-set on order status makes the race with
// ConfirmOrder resolve to exactly one winner. Idempotent: an already
// cancelled order returns changed=false with no error.
func (l *Ledger) ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, []market.ItemQty, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status='CANCELLED'
		WHERE id=$1 AND status='PENDING_PAYMENT' AND expires_at <= $2`, orderID, now)
	if err != nil {
		return false, nil, err
	}
	if ct.RowsAffected() == 0 {
		// paid in the meantime, already cancelled, or not yet due: all
		// quiet no-ops, only a missing order is an error
		if _, err := orderStatus(ctx, tx, orderID); err != nil {
			return false, nil, err
		}
		return false, nil, nil
	}

	released, err := flipItems(ctx, tx, orderID, market.ItemPending, market.ItemCancelled)
	if err != nil {
		return false, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return true, released, nil
}

// RefundOrder releases a PAID order's reservations and marks it REFUNDED.
// Rejected once any item has shipped. The caller must have reversed the
// payment before calling this; on gateway failure nothing here runs.
func (l *Ledger) RefundOrder(ctx context.Context, orderID string) ([]market.ItemQty, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var status market.OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != market.OrderPaid {
		return nil, market.ErrNotRefundable
	}

	var shipped int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_items
		WHERE order_id=$1 AND state IN ('IN_TRANSIT','DELIVERED')`, orderID).Scan(&shipped); err != nil {
		return nil, err
	}
	if shipped > 0 {
		return nil, market.ErrItemShipped
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status='REFUNDED' WHERE id=$1`, orderID); err != nil {
		return nil, err
	}
	released, err := flipItems(ctx, tx, orderID, market.ItemConfirmed, market.ItemReleased)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return released, nil
}

// MarkShipped moves the named CONFIRMED items of a PAID order to IN_TRANSIT
// and finalizes their stock: total_quantity drops by the shipped quantity
// while the reservation stops counting, so available stock is unchanged.
func (l *Ledger) MarkShipped(ctx context.Context, orderID, sellerID string, itemIDs []string, tracking string) ([]market.ItemQty, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	status, err := orderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if status != market.OrderPaid {
		return nil, market.ErrStaleTransition
	}

	rows, err := tx.Query(ctx, `
		UPDATE order_items SET state='IN_TRANSIT', tracking_code=$1
		WHERE order_id=$2 AND seller_id=$3 AND id = ANY($4) AND state='CONFIRMED'
		RETURNING listing_id, quantity`, tracking, orderID, sellerID, itemIDs)
	if err != nil {
		return nil, err
	}
	shipped, err := collectQtys(rows)
	if err != nil {
		return nil, err
	}
	if len(shipped) == 0 {
		// none of the named items belong to this seller in a shippable state
		return nil, market.ErrOrderNotFound
	}

	sort.Slice(shipped, func(i, j int) bool { return shipped[i].ListingID < shipped[j].ListingID })
	for _, s := range shipped {
		if _, err := tx.Exec(ctx, `
			UPDATE listings SET total_quantity = total_quantity - $2, updated_at=now()
			WHERE id=$1`, s.ListingID, s.Qty); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return shipped, nil
}

// flipItems moves all items of an order out of `from`, returns the released
// quantities per listing and restores each listing's IN_STOCK status when
// stock frees up. Listings are locked in ascending id order.
func flipItems(ctx context.Context, tx pgx.Tx, orderID string, from, to market.ItemState) ([]market.ItemQty, error) {
	rows, err := tx.Query(ctx, `
		UPDATE order_items SET state=$1 WHERE order_id=$2 AND state=$3
		RETURNING listing_id, quantity`, to, orderID, from)
	if err != nil {
		return nil, err
	}
	released, err := collectQtys(rows)
	if err != nil {
		return nil, err
	}

	sort.Slice(released, func(i, j int) bool { return released[i].ListingID < released[j].ListingID })
	for _, r := range released {
		_, _, _, total, reserved, active, err := lockListing(ctx, tx, r.ListingID)
		if err != nil {
			if errors.Is(err, market.ErrListingNotFound) {
				continue
			}
			return nil, err
		}
		status := market.ListingOutOfStock
		if active && total-reserved > 0 {
			status = market.ListingInStock
		}
		if _, err := tx.Exec(ctx, `
			UPDATE listings SET status=$2, updated_at=now() WHERE id=$1`, r.ListingID, status); err != nil {
			return nil, err
		}
	}
	return released, nil
}

func collectQtys(rows pgx.Rows) ([]market.ItemQty, error) {
	defer rows.Close()
	var out []market.ItemQty
	for rows.Next() {
		var q market.ItemQty
		if err := rows.Scan(&q.ListingID, &q.Qty); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func orderStatus(ctx context.Context, tx pgx.Tx, orderID string) (market.OrderStatus, error) {
	var s market.OrderStatus
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", market.ErrOrderNotFound
	}
	return s, err
}

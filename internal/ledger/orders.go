package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

func (l *Ledger) GetOrder(ctx context.Context, orderID string) (*market.Order, error) {
	var o market.Order
	err := l.DB.QueryRow(ctx, `
		SELECT id, buyer_id, total_cents, COALESCE(intent_id,''), status,
		       buyer_email, buyer_address, created_at, expires_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.IntentID, &o.Status,
			&o.BuyerEmail, &o.BuyerAddress, &o.CreatedAt, &o.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := l.DB.Query(ctx, `
		SELECT id, order_id, listing_id, seller_id, quantity, state,
		       COALESCE(tracking_code,''), snapshot_listing_title, snapshot_price_cents, created_at
		FROM order_items WHERE order_id=$1 ORDER BY listing_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it market.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ListingID, &it.SellerID, &it.Quantity,
			&it.State, &it.TrackingCode, &it.SnapshotListingTitle, &it.SnapshotPriceCents,
			&it.CreatedAt); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// ListOrders returns a user's orders, newest first. With sellerView the
// orders containing at least one of the user's items are returned instead.
func (l *Ledger) ListOrders(ctx context.Context, userID string, sellerView bool) ([]market.Order, error) {
	query := `
		SELECT id FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`
	if sellerView {
		query = `
		SELECT DISTINCT o.id FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE i.seller_id=$1 ORDER BY o.id DESC`
	}
	rows, err := l.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	ids, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}

	out := make([]market.Order, 0, len(ids))
	for _, id := range ids {
		o, err := l.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (l *Ledger) SetOrderIntent(ctx context.Context, orderID, intentID string) error {
	ct, err := l.DB.Exec(ctx, `UPDATE orders SET intent_id=$2 WHERE id=$1`, orderID, intentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return market.ErrOrderNotFound
	}
	return nil
}

// FindExpired lists pending orders whose payment window has elapsed. Served
// by the (status, expires_at) index; the sweeper calls this every pass.
func (l *Ledger) FindExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status='PENDING_PAYMENT' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

// BackdateOrder rewinds an order's payment window. Debug-only surface: the
// public API never exposes expires_at as mutable.
func (l *Ledger) BackdateOrder(ctx context.Context, orderID string, expiresAt time.Time) error {
	ct, err := l.DB.Exec(ctx, `UPDATE orders SET expires_at=$2 WHERE id=$1`, orderID, expiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return market.ErrOrderNotFound
	}
	return nil
}

// ListingStock is one row of the reconciliation snapshot.
type ListingStock struct {
	ListingID string
	Total     int
	Reserved  int
}

// StockSnapshot reports total and reserved quantity for every listing that
// currently holds active reservations. Used by the sweeper to repair the
// cache and to detect negative availability.
func (l *Ledger) StockSnapshot(ctx context.Context) ([]ListingStock, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT li.id, li.total_quantity, COALESCE(SUM(oi.quantity), 0)
		FROM listings li
		JOIN order_items oi ON oi.listing_id = li.id AND oi.state IN ('PENDING','CONFIRMED')
		GROUP BY li.id, li.total_quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListingStock
	for rows.Next() {
		var s ListingStock
		if err := rows.Scan(&s.ListingID, &s.Total, &s.Reserved); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AvailableStock derives availability straight from the ledger. The cache
// fronts this; on cache miss or cache failure this is the answer.
func (l *Ledger) AvailableStock(ctx context.Context, listingID string) (int, error) {
	var total, reserved int
	err := l.DB.QueryRow(ctx, `SELECT total_quantity FROM listings WHERE id=$1`, listingID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, market.ErrListingNotFound
	}
	if err != nil {
		return 0, err
	}
	if err := l.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM order_items
		WHERE listing_id=$1 AND state IN ('PENDING','CONFIRMED')`, listingID).Scan(&reserved); err != nil {
		return 0, err
	}
	avail := total - reserved
	if avail < 0 {
		return 0, &market.IntegrityError{ListingID: listingID, Available: avail}
	}
	return avail, nil
}

func (l *Ledger) ReservedStock(ctx context.Context, listingID string) (int, error) {
	var reserved int
	err := l.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM order_items
		WHERE listing_id=$1 AND state IN ('PENDING','CONFIRMED')`, listingID).Scan(&reserved)
	return reserved, err
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

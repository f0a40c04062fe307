package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

func (l *Ledger) CreateListing(ctx context.Context, li market.Listing) (*market.Listing, error) {
	li.ID = uuid.NewString()
	li.IsActive = true
	li.Status = market.ListingInStock
	if li.TotalQuantity <= 0 {
		li.Status = market.ListingOutOfStock
	}
	err := l.DB.QueryRow(ctx, `
		INSERT INTO listings(id, seller_id, title, description, price_cents, total_quantity, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		li.ID, li.SellerID, li.Title, li.Description, li.PriceCents, li.TotalQuantity, li.Status).
		Scan(&li.CreatedAt, &li.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &li, nil
}

func (l *Ledger) GetListing(ctx context.Context, listingID string) (*market.Listing, error) {
	var li market.Listing
	err := l.DB.QueryRow(ctx, `
		SELECT id, seller_id, title, COALESCE(description,''), price_cents, total_quantity,
		       status, is_active, inactive_at, created_at, updated_at
		FROM listings WHERE id=$1`, listingID).
		Scan(&li.ID, &li.SellerID, &li.Title, &li.Description, &li.PriceCents, &li.TotalQuantity,
			&li.Status, &li.IsActive, &li.InactiveAt, &li.CreatedAt, &li.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, market.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &li, nil
}

func (l *Ledger) ListListingsBySeller(ctx context.Context, sellerID string, includeInactive bool) ([]market.Listing, error) {
	query := `
		SELECT id, seller_id, title, COALESCE(description,''), price_cents, total_quantity,
		       status, is_active, inactive_at, created_at, updated_at
		FROM listings WHERE seller_id=$1 AND is_active ORDER BY created_at DESC`
	if includeInactive {
		query = `
		SELECT id, seller_id, title, COALESCE(description,''), price_cents, total_quantity,
		       status, is_active, inactive_at, created_at, updated_at
		FROM listings WHERE seller_id=$1 ORDER BY created_at DESC`
	}
	rows, err := l.DB.Query(ctx, query, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Listing
	for rows.Next() {
		var li market.Listing
		if err := rows.Scan(&li.ID, &li.SellerID, &li.Title, &li.Description, &li.PriceCents,
			&li.TotalQuantity, &li.Status, &li.IsActive, &li.InactiveAt, &li.CreatedAt,
			&li.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// ListingUpdate carries the seller-editable fields; nil means unchanged.
type ListingUpdate struct {
	Title       *string
	Description *string
	PriceCents  *int64
	Quantity    *int
}

// UpdateListing applies seller edits. Quantity changes run under the listing
// row lock and recompute the stock status from the reserved sum, the same
// discipline reservations use.
func (l *Ledger) UpdateListing(ctx context.Context, listingID, sellerID string, upd ListingUpdate) (*market.Listing, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ownerID, _, _, _, reserved, _, err := lockListing(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	if ownerID != sellerID {
		return nil, market.ErrListingNotFound
	}

	if upd.Title != nil {
		if _, err := tx.Exec(ctx, `UPDATE listings SET title=$2, updated_at=now() WHERE id=$1`, listingID, *upd.Title); err != nil {
			return nil, err
		}
	}
	if upd.Description != nil {
		if _, err := tx.Exec(ctx, `UPDATE listings SET description=$2, updated_at=now() WHERE id=$1`, listingID, *upd.Description); err != nil {
			return nil, err
		}
	}
	if upd.PriceCents != nil {
		if _, err := tx.Exec(ctx, `UPDATE listings SET price_cents=$2, updated_at=now() WHERE id=$1`, listingID, *upd.PriceCents); err != nil {
			return nil, err
		}
	}
	if upd.Quantity != nil {
		status := market.ListingInStock
		if *upd.Quantity-reserved <= 0 {
			status = market.ListingOutOfStock
		}
		if _, err := tx.Exec(ctx, `
			UPDATE listings SET total_quantity=$2, status=$3, updated_at=now()
			WHERE id=$1`, listingID, *upd.Quantity, status); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return l.GetListing(ctx, listingID)
}

// SoftDeleteListing toggles is_active, like the seller-facing deactivate
// button. Reservations referencing the listing are untouched: orders stay
// auditable.
func (l *Ledger) SoftDeleteListing(ctx context.Context, listingID, sellerID string) (bool, error) {
	var active bool
	err := l.DB.QueryRow(ctx, `
		UPDATE listings SET is_active = NOT is_active, inactive_at = now(), updated_at = now()
		WHERE id=$1 AND seller_id=$2
		RETURNING is_active`, listingID, sellerID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, market.ErrListingNotFound
	}
	return active, err
}

package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

// GetCart returns the user's cart, creating it on first touch.
func (l *Ledger) GetCart(ctx context.Context, userID string) (*market.Cart, error) {
	var c market.Cart
	err := l.DB.QueryRow(ctx, `SELECT id, user_id FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		c = market.Cart{ID: uuid.NewString(), UserID: userID}
		if _, err := l.DB.Exec(ctx, `
			INSERT INTO carts(id, user_id) VALUES ($1,$2)
			ON CONFLICT (user_id) DO NOTHING`, c.ID, c.UserID); err != nil {
			return nil, err
		}
		// re-read in case of a concurrent create
		if err := l.DB.QueryRow(ctx, `SELECT id, user_id FROM carts WHERE user_id=$1`, userID).
			Scan(&c.ID, &c.UserID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	rows, err := l.DB.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.listing_id, ci.quantity, ci.added_at,
		       li.title, li.price_cents, li.seller_id
		FROM cart_items ci
		JOIN listings li ON li.id = ci.listing_id
		WHERE ci.cart_id=$1 ORDER BY ci.added_at`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it market.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ListingID, &it.Quantity, &it.AddedAt,
			&it.ListingTitle, &it.ListingPriceCents, &it.SellerID); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// AddCartItem adds (or tops up) a cart line after an advisory availability
// check. The check is best-effort: the ledger re-validates under lock at
// checkout, which is where the guarantee lives.
func (l *Ledger) AddCartItem(ctx context.Context, userID, listingID string, qty int) (*market.CartItem, error) {
	if qty <= 0 {
		qty = 1
	}
	cart, err := l.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	available, err := l.AvailableStock(ctx, listingID)
	if err != nil {
		return nil, err
	}

	var existing int
	for _, it := range cart.Items {
		if it.ListingID == listingID {
			existing = it.Quantity
			break
		}
	}
	if existing+qty > available {
		return nil, &market.InsufficientStockError{
			ListingID: listingID,
			Requested: existing + qty,
			Available: available,
		}
	}

	var it market.CartItem
	err = l.DB.QueryRow(ctx, `
		INSERT INTO cart_items(id, cart_id, listing_id, quantity)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (cart_id, listing_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, listing_id, quantity, added_at`,
		uuid.NewString(), cart.ID, listingID, qty).
		Scan(&it.ID, &it.CartID, &it.ListingID, &it.Quantity, &it.AddedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (l *Ledger) UpdateCartItem(ctx context.Context, userID, itemID string, qty int) error {
	if qty <= 0 {
		return l.RemoveCartItem(ctx, userID, itemID)
	}
	ct, err := l.DB.Exec(ctx, `
		UPDATE cart_items SET quantity=$3
		FROM carts WHERE cart_items.cart_id = carts.id AND carts.user_id=$1 AND cart_items.id=$2`,
		userID, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return market.ErrListingNotFound
	}
	return nil
}

func (l *Ledger) RemoveCartItem(ctx context.Context, userID, itemID string) error {
	_, err := l.DB.Exec(ctx, `
		DELETE FROM cart_items USING carts
		WHERE cart_items.cart_id = carts.id AND carts.user_id=$1 AND cart_items.id=$2`,
		userID, itemID)
	return err
}

func (l *Ledger) ClearCart(ctx context.Context, userID string) error {
	_, err := l.DB.Exec(ctx, `
		DELETE FROM cart_items USING carts
		WHERE cart_items.cart_id = carts.id AND carts.user_id=$1`, userID)
	return err
}

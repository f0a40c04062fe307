package market

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleTransition: the order is no longer in the state the operation
	// expects (e.g. confirming an already-expired order). Callers decide
	// whether that is a no-op or a conflict.
	ErrStaleTransition = errors.New("stale order transition")

	ErrOrderNotFound   = errors.New("order not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrCartEmpty       = errors.New("cart empty")
	ErrOwnListing      = errors.New("cannot buy your own listing")
	ErrNotRefundable   = errors.New("order is not refundable")
	ErrItemShipped     = errors.New("order item already shipped")
	ErrPaymentMismatch = errors.New("payment reference does not match order intent")
)

// InsufficientStockError names the cart line that could not be reserved.
// Expected and user-facing, never a server error.
type InsufficientStockError struct {
	ListingID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for listing %s: requested %d, available %d",
		e.ListingID, e.Requested, e.Available)
}

// IntegrityError flags a listing whose derived availability went negative.
// Fatal for that listing only; flagged for manual reconciliation.
type IntegrityError struct {
	ListingID string
	Available int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on listing %s: available stock %d",
		e.ListingID, e.Available)
}

package market

import "time"

type ListingStatus string

const (
	ListingInStock    ListingStatus = "IN_STOCK"
	ListingOutOfStock ListingStatus = "OUT_OF_STOCK"
)

type Listing struct {
	ID            string
	SellerID      string
	Title         string
	Description   string
	PriceCents    int64
	TotalQuantity int
	Status        ListingStatus
	IsActive      bool
	InactiveAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Cart struct {
	ID     string
	UserID string
	Items  []CartItem
}

type CartItem struct {
	ID        string
	CartID    string
	ListingID string
	Quantity  int
	AddedAt   time.Time

	// joined from listings for cart views and checkout pricing
	ListingTitle      string
	ListingPriceCents int64
	SellerID          string
}

type Order struct {
	ID           string
	BuyerID      string
	TotalCents   int64
	IntentID     string
	Status       OrderStatus
	BuyerEmail   string
	BuyerAddress string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Items        []OrderItem
}

// OrderItem is the reservation: one line per listing, it holds stock while
// its state is PENDING or CONFIRMED. Snapshot columns keep the order
// auditable after the listing changes or is deactivated.
type OrderItem struct {
	ID           string
	OrderID      string
	ListingID    string
	SellerID     string
	Quantity     int
	State        ItemState
	TrackingCode string

	SnapshotListingTitle string
	SnapshotPriceCents   int64

	CreatedAt time.Time
}

// CheckoutLine is one cart line handed to the ledger at order creation.
type CheckoutLine struct {
	ListingID string
	Quantity  int
}

// NewOrder carries everything the ledger needs to create an order with its
// reservations in one transaction.
type NewOrder struct {
	BuyerID      string
	BuyerEmail   string
	BuyerAddress string
	ExpiresAt    time.Time
	Lines        []CheckoutLine
}

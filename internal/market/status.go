package market

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPendingPayment: {OrderPaid: true, OrderCancelled: true},
	OrderPaid:           {OrderRefunded: true},
	OrderCancelled:      {},
	OrderRefunded:       {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// ItemState is the reservation sub-lifecycle of one order item.
type ItemState string

const (
	ItemPending   ItemState = "PENDING"    // awaiting payment
	ItemConfirmed ItemState = "CONFIRMED"  // paid, awaiting shipment
	ItemInTransit ItemState = "IN_TRANSIT" // shipped with tracking code
	ItemDelivered ItemState = "DELIVERED"
	ItemReleased  ItemState = "RELEASED"  // stock returned (refund)
	ItemCancelled ItemState = "CANCELLED" // stock returned (expiry)
)

// HoldsStock reports whether the item still counts against available stock.
func (s ItemState) HoldsStock() bool {
	return s == ItemPending || s == ItemConfirmed
}

func (s ItemState) Shipped() bool {
	return s == ItemInTransit || s == ItemDelivered
}

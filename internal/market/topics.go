package market

const (
	TopicOrderCreated  = "order.created"
	TopicOrderPaid     = "order.paid"
	TopicOrderExpired  = "order.expired"
	TopicOrderRefunded = "order.refunded"
)

// Partition key = order_id, so all events of one order keep their ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

package redisx

import "time"

const (
	// Available stock mirror: stock:avail:{listing_id} -> int
	KeyStockAvail = "stock:avail:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"

	// Webhook idempotency: webhook:stripe:{event_id}
	KeyWebhookEvent = "webhook:stripe:%s"
)

var (
	TTLStockCache = 10 * time.Second
	TTLDedup      = 48 * time.Hour
	TTLWebhook    = 24 * time.Hour
)

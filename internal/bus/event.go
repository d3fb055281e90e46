package bus

import "time"

// Event kinds published by the daemon.
const (
	KindMessagePersisted   = "message.persisted"
	KindMessageSkipped     = "message.skipped"
	KindDeliveryQueued     = "delivery.queued"
	KindDeliveryUnroutable = "delivery.unroutable"
	KindDeliveryFailed     = "delivery.failed"
	KindDeliveryStalled    = "delivery.stalled"
	KindStatusChanged      = "daemon.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Fields    map[string]string
}

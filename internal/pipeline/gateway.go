package pipeline

import "github.com/matheus3301/tgfilter/internal/store"

// Gateway is the persistence surface used by the orchestrator. Each call is
// its own transaction; nothing wraps a whole fan-out.
type Gateway interface {
	SaveMessage(msg *store.Message) error
	ActiveFilters() ([]store.Filter, error)
	CreateDeliveryRecord(userID, channelID, messageID int64) (*store.DeliveryRecord, error)
	MarkDeliveryProcessed(rec *store.DeliveryRecord) error
	LatestDestination(userID int64) (*store.Destination, error)
}

var _ Gateway = (*store.DB)(nil)

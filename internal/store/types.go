package store

// Status is the lifecycle state shared by users and filters.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Message is a channel message as persisted by the orchestrator.
type Message struct {
	ID        int64
	ChannelID int64
	Body      string
	PostedAt  int64 // unix ms
}

// Filter is a user-owned search pattern.
type Filter struct {
	ID        int64
	UserID    int64
	Pattern   string
	Status    Status
	CreatedAt int64
}

// Destination is a user's chat binding joined with the user's profile.
type Destination struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	Username    string
	Locale      string
}

// DeliveryRecord tracks delivery intent for one user and channel message.
type DeliveryRecord struct {
	UserID    int64
	ChannelID int64
	MessageID int64
	Processed bool
	CreatedAt int64
}

// DeliveryCounts summarises the user_messages table.
type DeliveryCounts struct {
	Processed int
	Pending   int
}

package api

import "github.com/matheus3301/tgfilter/internal/wire"

// Requests and responses of the Control service, msgpack-encoded inside a
// BytesValue.

type StatusRequest struct{}

type QueueDepth struct {
	Len int `msgpack:"len"`
	Cap int `msgpack:"cap"`
}

type PipelineCounters struct {
	Messages   uint64 `msgpack:"messages"`
	Skipped    uint64 `msgpack:"skipped"`
	Jobs       uint64 `msgpack:"jobs"`
	Unroutable uint64 `msgpack:"unroutable"`
	Failures   uint64 `msgpack:"failures"`
}

type StatusResponse struct {
	Instance      string           `msgpack:"instance"`
	State         string           `msgpack:"state"`
	UptimeMs      int64            `msgpack:"uptime_ms"`
	Inbound       QueueDepth       `msgpack:"inbound"`
	Outbound      QueueDepth       `msgpack:"outbound"`
	Pipeline      PipelineCounters `msgpack:"pipeline"`
	MessageCount  int              `msgpack:"message_count"`
	Processed     int              `msgpack:"processed"`
	Pending       int              `msgpack:"pending"`
	LastStalled   int              `msgpack:"last_stalled"`
	EventsDropped uint64           `msgpack:"events_dropped"`
	StoreError    string           `msgpack:"store_error,omitempty"`
}

type Filter struct {
	ID          int64  `msgpack:"id"`
	UserID      int64  `msgpack:"user_id"`
	Pattern     string `msgpack:"pattern"`
	Status      string `msgpack:"status"`
	CreatedAtMs int64  `msgpack:"created_at_ms"`
}

type AddFilterRequest struct {
	UserID  int64  `msgpack:"user_id"`
	Pattern string `msgpack:"pattern"`
}

type AddFilterResponse struct {
	Filter Filter `msgpack:"filter"`
}

type DisableFilterRequest struct {
	UserID   int64 `msgpack:"user_id"`
	FilterID int64 `msgpack:"filter_id"`
}

type DisableFilterResponse struct {
	Disabled bool `msgpack:"disabled"`
}

type ListFiltersRequest struct {
	UserID int64 `msgpack:"user_id"`
}

type ListFiltersResponse struct {
	Filters []Filter `msgpack:"filters"`
}

type UpsertBindingRequest struct {
	Destination wire.Destination `msgpack:"destination"`
}

type UpsertBindingResponse struct{}

type SetUserStatusRequest struct {
	UserID int64 `msgpack:"user_id"`
	Active bool  `msgpack:"active"`
}

type SetUserStatusResponse struct {
	Updated bool `msgpack:"updated"`
}

type StalledRecordsRequest struct {
	OlderThanMs int64 `msgpack:"older_than_ms"`
	Limit       int   `msgpack:"limit"`
}

type DeliveryRecord struct {
	UserID      int64 `msgpack:"user_id"`
	ChannelID   int64 `msgpack:"channel_id"`
	MessageID   int64 `msgpack:"message_id"`
	CreatedAtMs int64 `msgpack:"created_at_ms"`
}

type StalledRecordsResponse struct {
	Records []DeliveryRecord `msgpack:"records"`
}

// WatchRequest selects events whose kind starts with Prefix. An empty
// prefix streams everything.
type WatchRequest struct {
	Prefix string `msgpack:"prefix"`
}

type Event struct {
	ID           string            `msgpack:"id"`
	Kind         string            `msgpack:"kind"`
	OccurredAtMs int64             `msgpack:"occurred_at_ms"`
	Fields       map[string]string `msgpack:"fields"`
}

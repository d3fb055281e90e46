// Package wire defines the items exchanged between tgfilter processes and
// their msgpack encoding.
package wire

import "time"

// ChannelMessage is a message observed on the monitored channel. It is the
// inbound queue item.
type ChannelMessage struct {
	MessageID       int64     `msgpack:"message_id"`
	SourceChannelID int64     `msgpack:"source_channel_id"`
	Body            string    `msgpack:"body"`
	Timestamp       time.Time `msgpack:"timestamp"`
}

// Destination is where a user can currently be reached.
type Destination struct {
	UserID      int64  `msgpack:"user_id"`
	ChatID      int64  `msgpack:"chat_id"`
	DisplayName string `msgpack:"display_name"`
	Username    string `msgpack:"username"`
	Locale      string `msgpack:"locale"`
}

// ForwardingJob pairs a message with its resolved destination. It is the
// outbound queue item.
type ForwardingJob struct {
	JobID       string         `msgpack:"job_id"`
	Message     ChannelMessage `msgpack:"message"`
	Destination Destination    `msgpack:"destination"`
}

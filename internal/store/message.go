package store

import (
	"database/sql"
	"errors"
	"time"
)

// SaveMessage inserts a channel message. A (channel, message id) pair that
// was already persisted is rejected so a replayed message never fans out twice.
func (db *DB) SaveMessage(msg *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (channel_id, message_id, body, posted_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ChannelID, msg.ID, msg.Body, msg.PostedAt, time.Now().UnixMilli())
	return err
}

// GetMessage returns the message posted as id in channelID, or nil if not found.
func (db *DB) GetMessage(channelID, id int64) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT message_id, channel_id, body, posted_at FROM messages
		WHERE channel_id = ? AND message_id = ?`, channelID, id).
		Scan(&m.ID, &m.ChannelID, &m.Body, &m.PostedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageCount returns the total number of persisted messages.
func (db *DB) MessageCount() (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

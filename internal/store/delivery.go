package store

import "time"

// CreateDeliveryRecord inserts an unprocessed record for the user and the
// message posted as messageID in channelID. A second record is rejected.
func (db *DB) CreateDeliveryRecord(userID, channelID, messageID int64) (*DeliveryRecord, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO user_messages (user_id, channel_id, message_id, processed, created_at)
		VALUES (?, ?, ?, 0, ?)`, userID, channelID, messageID, now)
	if err != nil {
		return nil, err
	}
	return &DeliveryRecord{UserID: userID, ChannelID: channelID, MessageID: messageID, CreatedAt: now}, nil
}

// MarkDeliveryProcessed flips the record to processed.
func (db *DB) MarkDeliveryProcessed(rec *DeliveryRecord) error {
	_, err := db.Exec(`
		UPDATE user_messages SET processed = 1, processed_at = ?
		WHERE user_id = ? AND channel_id = ? AND message_id = ?`,
		time.Now().UnixMilli(), rec.UserID, rec.ChannelID, rec.MessageID)
	if err != nil {
		return err
	}
	rec.Processed = true
	return nil
}

// GetDeliveryRecord returns the user's record for a channel message, or nil.
func (db *DB) GetDeliveryRecord(userID, channelID, messageID int64) (*DeliveryRecord, error) {
	recs, err := db.queryRecords(`
		SELECT user_id, channel_id, message_id, processed, created_at FROM user_messages
		WHERE user_id = ? AND channel_id = ? AND message_id = ?`, userID, channelID, messageID)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// StalledRecords returns unprocessed records created before the cutoff,
// oldest first.
func (db *DB) StalledRecords(before time.Time, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryRecords(`
		SELECT user_id, channel_id, message_id, processed, created_at FROM user_messages
		WHERE processed = 0 AND created_at <= ?
		ORDER BY created_at ASC, channel_id ASC, message_id ASC
		LIMIT ?`, before.UnixMilli(), limit)
}

// CountDeliveries returns processed and pending record totals.
func (db *DB) CountDeliveries() (DeliveryCounts, error) {
	var c DeliveryCounts
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0)
		FROM user_messages`).Scan(&c.Processed, &c.Pending)
	return c, err
}

func (db *DB) queryRecords(query string, args ...any) ([]DeliveryRecord, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		if err := rows.Scan(&r.UserID, &r.ChannelID, &r.MessageID, &r.Processed, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

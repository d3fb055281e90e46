package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertBinding records that the user was just seen on the given chat. The
// user is (re)activated and its profile refreshed.
func (db *DB) UpsertBinding(d *Destination) error {
	now := time.Now()
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO users (user_id, display_name, username, locale, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'ACTIVE', ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			username = excluded.username,
			locale = excluded.locale,
			status = 'ACTIVE',
			updated_at = excluded.updated_at`,
		d.UserID, d.DisplayName, d.Username, d.Locale, now.UnixMilli(), now.UnixMilli()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO chat_users (chat_id, user_id, created_at, seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			user_id = excluded.user_id,
			seen_at = excluded.seen_at`,
		d.ChatID, d.UserID, now.UnixMilli(), now.UnixNano()); err != nil {
		return fmt.Errorf("upsert chat user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit binding: %w", err)
	}
	return nil
}

// LatestDestination returns the most recently seen chat of an ACTIVE user,
// or nil if the user has none.
func (db *DB) LatestDestination(userID int64) (*Destination, error) {
	var d Destination
	err := db.QueryRow(`
		SELECT c.user_id, c.chat_id, u.display_name, u.username, u.locale
		FROM chat_users c
		JOIN users u ON u.user_id = c.user_id
		WHERE c.user_id = ? AND u.status = 'ACTIVE'
		ORDER BY c.seen_at DESC
		LIMIT 1`, userID).
		Scan(&d.UserID, &d.ChatID, &d.DisplayName, &d.Username, &d.Locale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SetUserStatus activates or deactivates a user. Inactive users are ignored
// by matching and have no destination.
func (db *DB) SetUserStatus(userID int64, status Status) (bool, error) {
	res, err := db.Exec(`UPDATE users SET status = ?, updated_at = ? WHERE user_id = ?`,
		status, time.Now().UnixMilli(), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

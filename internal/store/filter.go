package store

import (
	"fmt"
	"time"
)

// AddFilter stores a new ACTIVE filter for the user. The user row is created
// if it does not exist yet.
func (db *DB) AddFilter(userID int64, pattern string) (*Filter, error) {
	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO users (user_id, status, created_at, updated_at)
		VALUES (?, 'ACTIVE', ?, ?)
		ON CONFLICT(user_id) DO NOTHING`, userID, now, now); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO filters (user_id, pattern, status, created_at)
		VALUES (?, ?, 'ACTIVE', ?)`, userID, pattern, now)
	if err != nil {
		return nil, fmt.Errorf("insert filter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit filter: %w", err)
	}
	return &Filter{ID: id, UserID: userID, Pattern: pattern, Status: StatusActive, CreatedAt: now}, nil
}

// DisableFilter marks a user's filter INACTIVE. Filters are never deleted.
// Returns false if the user owns no ACTIVE filter with that id.
func (db *DB) DisableFilter(userID, filterID int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE filters SET status = 'INACTIVE'
		WHERE user_id = ? AND filter_id = ? AND status = 'ACTIVE'`, userID, filterID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UserFilters returns the user's ACTIVE filters, oldest first.
func (db *DB) UserFilters(userID int64) ([]Filter, error) {
	return db.queryFilters(`
		SELECT filter_id, user_id, pattern, status, created_at
		FROM filters
		WHERE user_id = ? AND status = 'ACTIVE'
		ORDER BY created_at ASC, filter_id ASC`, userID)
}

// ActiveFilters returns every ACTIVE filter owned by an ACTIVE user.
func (db *DB) ActiveFilters() ([]Filter, error) {
	return db.queryFilters(`
		SELECT f.filter_id, f.user_id, f.pattern, f.status, f.created_at
		FROM filters f
		JOIN users u ON u.user_id = f.user_id
		WHERE f.status = 'ACTIVE' AND u.status = 'ACTIVE'
		ORDER BY f.filter_id ASC`)
}

func (db *DB) queryFilters(query string, args ...any) ([]Filter, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var filters []Filter
	for rows.Next() {
		var f Filter
		if err := rows.Scan(&f.ID, &f.UserID, &f.Pattern, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

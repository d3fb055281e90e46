package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/tgfilter/internal/store/migrations"
)

// MigrateResult reports the schema version before and after Migrate.
type MigrateResult struct {
	From uint
	To   uint
}

// Changed reports whether any migration ran.
func (r *MigrateResult) Changed() bool { return r.From != r.To }

// Migrate applies pending migrations. A schema left dirty by an earlier
// failed run is reported as an error rather than migrated over.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	from, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate up from %d: %w", from, err)
	}
	to, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{From: from, To: to}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("schema version: %w", err)
	case dirty:
		return 0, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

package migrations

import "embed"

// FS holds the versioned SQL migrations applied by store.Migrate.
//
//go:embed *.sql
var FS embed.FS

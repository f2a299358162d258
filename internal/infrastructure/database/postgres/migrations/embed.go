// Package migrations holds the versioned PostgreSQL schema of the engine.
package migrations

import "embed"

// FS contains every *.sql migration, named for golang-migrate.
//
//go:embed *.sql
var FS embed.FS

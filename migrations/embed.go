// Package migrations embeds the catalog schema migrations into the binary
// so the SQL files need not exist on disk at runtime.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for database.Migrate.
//
//go:embed *.sql
var FS embed.FS

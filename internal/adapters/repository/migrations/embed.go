package migrations

import "embed"

// FS contains embedded SQLite migrations for the auth id store.
//
//go:embed *.sql
var FS embed.FS

// Package migrations embeds the SQL schema so the binary is self-contained.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS

// SQLite and Postgres are the schema files per database type.
const (
	SQLite   = "001_layout_pins.sqlite.sql"
	Postgres = "001_layout_pins.postgres.sql"
)

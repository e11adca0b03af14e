// Package migrations embeds and applies the mint-origin cache schema.
package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema files, applied in file-name order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

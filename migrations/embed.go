// Package migrations holds the Postgres schema for credential records and
// the event outbox. Files are applied in name order by database.Migrate, at
// server start and by `certctl migrate`.
package migrations

import "embed"

// FS contains the NNNNNN_name.up.sql and .down.sql files.
//
//go:embed *.sql
var FS embed.FS

// Package migrations embeds the goose SQL migrations for the job queue
// and the subscription payment ledger.
package migrations

import "embed"

// FS holds the migration files. Pass it to db.Migrate.
//
//go:embed *.sql
var FS embed.FS

// ==================================
// File: internal/storage/migrations/migrations.go
// ==================================
package migrations

import "embed"

// FS holds the goose SQL migrations for the settlement schema.
//
//go:embed *.sql
var FS embed.FS

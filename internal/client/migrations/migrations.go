// Package migrations embeds the SQLite schema of the coordinator's local store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

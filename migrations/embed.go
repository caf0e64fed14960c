// Package migrations embeds the goose SQL migration files applied to
// the server-side event log database at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the SQL migration files so the migrate command
// can run them from a single binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the SQL schema applied by taskflow migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

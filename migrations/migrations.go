// Package migrations embeds the SQL schema applied by store.RunMigrations.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS

// Package migrations holds the schema, one NNN_name.up.sql file per version.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

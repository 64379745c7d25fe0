// Package migrations embeds the SQL schema of the commissioning journal and
// the operator audit trail.
//
//	db.Migrate(ctx, migrations.FS)
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files of this directory.
//
//go:embed *.sql
var FS embed.FS

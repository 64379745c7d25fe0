// Package database provides the SQLite store behind the commissioning
// journal.
//
// This package manages:
//   - Opening the database file with WAL mode, busy timeout and foreign keys
//   - Forward-only schema migrations read from an fs.FS
//   - Health checks for the API
//
// The file is created with 0600 permissions inside a 0750 directory. A
// single connection is kept open because SQLite serialises writers.
//
// # Usage
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//	journal := commissioning.NewSQLiteJournal(db.DB)
//
// # Migrations
//
// Files are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// .down.sql. Each migration runs in its own transaction and is recorded
// in schema_migrations. New columns must be NULLABLE or carry a DEFAULT.
package database

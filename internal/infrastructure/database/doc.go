// Package database provides the SQLite connection behind the SleepGrind
// script catalog.
//
// This package manages:
//   - Opening the catalog file with WAL mode and a busy timeout
//   - Applying embedded schema migrations in version order
//   - Health checks for the status API
//
// Usage:
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
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Migrations are additive-only.
package database

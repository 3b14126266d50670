// Package database opens the SQLite database that holds saved filter rules.
//
// The database is small and single-user: one connection, optional WAL
// mode, and a busy timeout. Schema changes are plain SQL files named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql, applied in version order
// and recorded in schema_migrations.
//
// The migrations package embeds the SQL files and sets MigrationsFS during
// init, so importing it for side effects is enough:
//
//	import _ "github.com/nerrad567/mqtt-inspect/migrations"
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Passing MemoryPath as the path gives a private in-memory database, which
// the tests use.
package database

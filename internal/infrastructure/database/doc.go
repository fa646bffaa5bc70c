// Package database provides the SQLite connection behind the lock directory.
//
// It manages:
//   - Opening the database with WAL mode, foreign keys and a busy timeout
//   - Versioned schema migrations read from MigrationsFS
//   - Health checks for the API's /health endpoint
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600; it holds lock share codes
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive: new columns must be NULLABLE or have a DEFAULT,
// and each .up.sql should ship with a .down.sql.
package database

// Package database provides SQLite persistence for the bridge.
//
// The only durable state is the bridge's identity (see internal/identity).
// Keeping it in SQLite rather than a flat file gives atomic writes, a
// migration path for future state, and crash safety via WAL.
//
// This package manages:
//   - Opening the database with WAL mode and busy timeout pragmas
//   - Embedded schema migrations (see the migrations package)
//   - Health checks
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

// Package database provides SQLite connectivity and schema migrations.
//
// All durable state of the smartpot core lives in one SQLite file: flowers,
// smart pots, households and users (the entity store), the five per-metric
// measurement tables, and the binding audit trail.
//
// The connection runs in WAL mode with a busy timeout and a single open
// connection, matching SQLite's single-writer model. Each row write is a
// single statement, so every document update is atomic on its own; the
// package offers no cross-document transaction to its callers beyond BeginTx.
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
// Migrations are registered by the migrations package (blank import) and
// are additive only: new columns must be nullable or carry a default.
package database

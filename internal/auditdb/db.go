// Package auditdb persists a run-by-run audit trail for the pipeline:
// one row per run, row counts in and out of every stage, and the
// geography codes a run could not match to a police force area.
package auditdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the audit database at path.
// Callers normally follow with MigrateUp before recording anything.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
	}
	// One writer connection, so the pragma below holds for every
	// statement the pool runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &DB{db}, nil
}

// Package database implements the PostgreSQL persistence layer for
// conversations, program progress, and the coaching example corpus.
package database

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Database represents the coach database
type Database struct {
	db *sql.DB
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is still alive.
func (d *Database) Ping() error {
	return d.db.Ping()
}

// DB exposes the underlying handle for components that manage their own
// tables, such as the logging manager.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Package sqlite implements the identity and subscription stores on SQLite.
//
// modernc.org/sqlite is a pure Go driver, so the binary builds without CGo and tests can run
// against ":memory:" databases.
//
// The pool is limited to a single connection: every ":memory:" connection is a separate
// database, and SQLite serialises writers anyway. Callers must therefore close *sql.Rows before
// issuing another statement, which every method here does by draining into a slice.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB owns the connection pool and hands out the per-table stores.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (or ":memory:") and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Off by default in SQLite; subscriptions.user_id references users.id.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the identity store.
func (db *DB) Users() *UserStore {
	return &UserStore{conn: db.conn}
}

// Subscriptions returns the subscription store.
func (db *DB) Subscriptions() *SubscriptionStore {
	return &SubscriptionStore{conn: db.conn}
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			email          TEXT NOT NULL UNIQUE,
			name           TEXT NOT NULL DEFAULT '',
			oauth_provider TEXT NOT NULL,
			oauth_id       TEXT NOT NULL,
			api_token       TEXT UNIQUE,
			session_version INTEGER NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (oauth_provider, oauth_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Databases created before session revocation lack the column.
	if err := db.addColumn("users", "session_version", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     INTEGER NOT NULL REFERENCES users(id),
			location_id TEXT NOT NULL,
			city_name   TEXT NOT NULL,
			email       TEXT NOT NULL,
			is_active   INTEGER NOT NULL DEFAULT 1,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_sent   DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(is_active);
	`)
	if err != nil {
		return fmt.Errorf("creating subscriptions table: %w", err)
	}

	// Only active rows take part in uniqueness, so an identical subscription can be
	// created again after the previous one was soft-deleted.
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_active_triple
		ON subscriptions(user_id, location_id, email) WHERE is_active = 1;
	`)
	if err != nil {
		return fmt.Errorf("creating active subscription index: %w", err)
	}

	return nil
}

// addColumn adds column to table unless it already exists.
func (db *DB) addColumn(table, column, decl string) error {
	var n int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting %s columns: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.conn.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

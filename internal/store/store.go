// Package store provides the SQLite persistence of docqa: a vector index
// that keeps embedded chunks in a local database file, and a query log that
// records every answered question. Both use the pure-Go modernc driver.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// DisabledPath is the DOCQA_HISTORY_DB value that turns the query log off.
const DisabledPath = "disabled"

// DefaultDir returns ~/.docqa, creating it if needed.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultDBPath returns the default query log path, ~/.docqa/history.db.
func DefaultDBPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// DefaultIndexPath returns the default SQLite index path, ~/.docqa/index.db.
func DefaultIndexPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "index.db"), nil
}

// openDB opens path with WAL journaling and a single connection, then runs
// ddl. Use ":memory:" for an in-memory database in tests.
func openDB(path, ddl string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection avoids SQLITE_BUSY between writers and keeps an
	// in-memory database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate %s: %w", path, err)
	}
	return db, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one answered query in the log.
type Entry struct {
	// ID is the row id assigned by SQLite.
	ID int64 `json:"id"`
	// Question is the query text as asked.
	Question string `json:"question"`
	// Answer is the text returned to the caller.
	Answer string `json:"answer"`
	// Outcome is the terminal orchestrator state (answered, no_context, degraded).
	Outcome string `json:"outcome"`
	// Confidence is the heuristic confidence returned with the answer.
	Confidence float64 `json:"confidence"`
	// Sources lists the distinct sources cited in the answer.
	Sources []string `json:"sources"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// QueryLog persists and lists answered queries. Implementations must be
// safe for concurrent use.
type QueryLog interface {
	// Append persists a single entry. CreatedAt defaults to now.
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

const historyDDL = `
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    confidence   REAL    NOT NULL,
    sources      TEXT    NOT NULL,  -- JSON array
    created_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`

// Open opens (or creates) a SQLiteStore at the given path.
func Open(path string) (*SQLiteStore, error) {
	db, err := openDB(path, historyDDL)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append persists a single entry.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	sources := e.Sources
	if sources == nil {
		sources = []string{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("store: append: encode sources: %w", err)
	}

	const q = `INSERT INTO queries (question, answer, outcome, confidence, sources, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Question, e.Answer, e.Outcome, e.Confidence, string(raw), e.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, question, answer, outcome, confidence, sources, created_at
FROM   queries
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			sources string
			ts      int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Outcome, &e.Confidence, &sources, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("store: recent: decode sources of entry %d: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

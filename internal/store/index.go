package store

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/rag"
)

const indexDDL = `
CREATE TABLE IF NOT EXISTS collections (
    name         TEXT    PRIMARY KEY,
    dimension    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT    NOT NULL UNIQUE,
    collection     TEXT    NOT NULL REFERENCES collections(name),
    text           TEXT    NOT NULL,
    source         TEXT    NOT NULL,
    sequence_index INTEGER NOT NULL,
    vector         BLOB    NOT NULL   -- little-endian float32
);
CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries (collection, seq);
`

// SQLiteIndex is a rag.VectorIndex persisted in a SQLite file. Search is an
// exact L2 scan over the collection, so it suits corpora that fit a scan
// per query. Each Insert is a single transaction. The collection's vector
// dimension is pinned on first open.
type SQLiteIndex struct {
	db   *sql.DB
	name string
	dim  int
}

// OpenIndex opens (or creates) the named collection in the database at
// path. Reopening a collection with a different dimension fails with
// rag.ErrIndexWrite.
func OpenIndex(path, name string, dim int) (*SQLiteIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("store: index dimension must be positive, got %d: %w", dim, rag.ErrValidation)
	}
	if name == "" {
		name = "document_chunks"
	}
	db, err := openDB(path, indexDDL)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteIndex{db: db, name: name, dim: dim}
	if err := idx.pinDimension(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// pinDimension records the collection dimension, or checks it against the
// recorded one.
func (s *SQLiteIndex) pinDimension() error {
	var stored int
	err := s.db.QueryRow(`SELECT dimension FROM collections WHERE name = ?`, s.name).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO collections (name, dimension) VALUES (?, ?)`, s.name, s.dim); err != nil {
			return fmt.Errorf("store: create collection %q: %w", s.name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: read collection %q: %w", s.name, err)
	case stored != s.dim:
		return fmt.Errorf("store: collection %q has dimension %d, embedder produces %d: %w",
			s.name, stored, s.dim, rag.ErrIndexWrite)
	}
	return nil
}

// Insert writes every entry in one transaction.
func (s *SQLiteIndex) Insert(ctx context.Context, entries []rag.EmbeddedChunk) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i, e := range entries {
		if len(e.Vector) != s.dim {
			return nil, fmt.Errorf("store: entry %d has dimension %d, index expects %d: %w",
				i, len(e.Vector), s.dim, rag.ErrIndexWrite)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: insert: begin: %w: %w", rag.ErrIndexWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (id, collection, text, source, sequence_index, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("store: insert: prepare: %w: %w", rag.ErrIndexWrite, err)
	}
	defer stmt.Close()

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx, ids[i], s.name, e.Text, e.Source, e.SequenceIndex, encodeVector(e.Vector)); err != nil {
			return nil, fmt.Errorf("store: insert entry %d: %w: %w", i, rag.ErrIndexWrite, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: insert: commit: %w: %w", rag.ErrIndexWrite, err)
	}
	return ids, nil
}

// Search scans the collection and returns the topK nearest entries.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, topK int) ([]rag.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("store: topK must be positive, got %d: %w", topK, rag.ErrValidation)
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("store: query has dimension %d, index expects %d: %w", len(vector), s.dim, rag.ErrIndexRead)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, source, sequence_index, vector FROM entries WHERE collection = ? ORDER BY seq`, s.name)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w: %w", rag.ErrIndexRead, err)
	}
	defer rows.Close()

	hits := []rag.RetrievedChunk{}
	for rows.Next() {
		var (
			c    rag.RetrievedChunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.SequenceIndex, &blob); err != nil {
			return nil, fmt.Errorf("store: search scan: %w: %w", rag.ErrIndexRead, err)
		}
		v, err := decodeVector(blob)
		if err != nil || len(v) != s.dim {
			return nil, fmt.Errorf("store: entry %s has a corrupt vector: %w", c.ID, rag.ErrIndexRead)
		}
		c.Distance = rag.L2(vector, v)
		hits = append(hits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w: %w", rag.ErrIndexRead, err)
	}

	slices.SortStableFunc(hits, func(a, b rag.RetrievedChunk) int { return cmp.Compare(a.Distance, b.Distance) })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Size returns the number of entries in the collection.
func (s *SQLiteIndex) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, s.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: size: %w: %w", rag.ErrIndexRead, err)
	}
	return n, nil
}

// Name returns the collection name.
func (s *SQLiteIndex) Name() string { return s.name }

// Info reports exact L2 search.
func (s *SQLiteIndex) Info() rag.IndexInfo {
	return rag.IndexInfo{Backend: "sqlite", Metric: rag.MetricL2, Structure: "flat"}
}

// Ping checks the database connection.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// encodeVector converts v to a little-endian float32 blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// storedEntry is an IndexEntry held by the in-memory indexes.
type storedEntry struct {
	// id is the UUID assigned at insert time.
	id string
	// chunk is the stored chunk text and provenance.
	chunk Chunk
	// vector is a private copy of the embedding.
	vector []float32
}

// hit pairs a stored entry with its distance to a query.
type hit struct {
	entry    *storedEntry
	distance float32
}

// FlatIndex is an exact in-memory VectorIndex: every search scans every
// entry and ranks by L2 distance. Suitable for small corpora and tests.
// Writers are serialized; readers run concurrently.
type FlatIndex struct {
	// mu guards entries.
	mu sync.RWMutex
	// name is the collection name reported by Name.
	name string
	// dim is the required vector length.
	dim int
	// entries holds every inserted entry in insertion order.
	entries []*storedEntry
}

// NewFlatIndex constructs an empty FlatIndex for vectors of length dim.
func NewFlatIndex(name string, dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("rag: flat index dimension must be positive, got %d: %w", dim, ErrValidation)
	}
	return &FlatIndex{name: name, dim: dim}, nil
}

// Insert validates every entry, then appends them under the write lock.
func (f *FlatIndex) Insert(ctx context.Context, entries []EmbeddedChunk) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	stored, err := prepareEntries(entries, f.dim)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: flat insert: %w: %w", ErrIndexWrite, err)
	}

	f.mu.Lock()
	f.entries = append(f.entries, stored...)
	f.mu.Unlock()

	return entryIDs(stored), nil
}

// Search ranks every entry by L2 distance to vector.
func (f *FlatIndex) Search(ctx context.Context, vector []float32, topK int) ([]RetrievedChunk, error) {
	if err := checkQuery(ctx, vector, topK, f.dim); err != nil {
		return nil, err
	}

	f.mu.RLock()
	hits := make([]hit, 0, len(f.entries))
	for _, e := range f.entries {
		hits = append(hits, hit{entry: e, distance: l2(vector, e.vector)})
	}
	f.mu.RUnlock()

	return rankHits(hits, topK), nil
}

// Size returns the number of stored entries.
func (f *FlatIndex) Size(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries), nil
}

// Name returns the collection name.
func (f *FlatIndex) Name() string { return f.name }

// Info reports exact L2 search.
func (f *FlatIndex) Info() IndexInfo {
	return IndexInfo{Backend: "flat", Metric: MetricL2, Structure: "flat"}
}

// Close is a no-op; the index lives only in memory.
func (f *FlatIndex) Close() error { return nil }

// prepareEntries validates dimensions and copies entries into storage form.
// Nothing is returned unless every entry is valid.
func prepareEntries(entries []EmbeddedChunk, dim int) ([]*storedEntry, error) {
	stored := make([]*storedEntry, 0, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("rag: entry %d has dimension %d, index expects %d: %w",
				i, len(e.Vector), dim, ErrIndexWrite)
		}
		stored = append(stored, &storedEntry{
			id:     uuid.NewString(),
			chunk:  e.Chunk,
			vector: slices.Clone(e.Vector),
		})
	}
	return stored, nil
}

// checkQuery validates a search request against the index dimension.
func checkQuery(ctx context.Context, vector []float32, topK, dim int) error {
	if topK <= 0 {
		return fmt.Errorf("rag: topK must be positive, got %d: %w", topK, ErrValidation)
	}
	if len(vector) != dim {
		return fmt.Errorf("rag: query has dimension %d, index expects %d: %w", len(vector), dim, ErrIndexRead)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rag: search: %w: %w", ErrIndexRead, err)
	}
	return nil
}

// rankHits sorts hits by ascending distance (ties keep insertion order) and
// converts the first topK into RetrievedChunks.
func rankHits(hits []hit, topK int) []RetrievedChunk {
	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(a.distance, b.distance)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, RetrievedChunk{
			ID:            h.entry.id,
			Text:          h.entry.chunk.Text,
			Source:        h.entry.chunk.Source,
			SequenceIndex: h.entry.chunk.SequenceIndex,
			Distance:      h.distance,
		})
	}
	return out
}

func entryIDs(stored []*storedEntry) []string {
	ids := make([]string, len(stored))
	for i, e := range stored {
		ids[i] = e.id
	}
	return ids
}

// l2 returns the Euclidean distance between two equal-length vectors.
func l2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(l2Squared(a, b))))
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// L2 is the exported distance used by backends outside this package.
func L2(a, b []float32) float32 { return l2(a, b) }

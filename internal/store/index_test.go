package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func openTestIndex(t *testing.T, dim int) *SQLiteIndex {
	t.Helper()
	idx, err := OpenIndex(":memory:", "test", dim)
	if err != nil {
		t.Fatalf("open in-memory index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func chunks(vectors ...[]float32) []rag.EmbeddedChunk {
	out := make([]rag.EmbeddedChunk, len(vectors))
	for i, v := range vectors {
		out[i] = rag.EmbeddedChunk{
			Chunk:  rag.Chunk{Text: fmt.Sprintf("chunk %d", i), Source: "doc", SequenceIndex: i},
			Vector: v,
		}
	}
	return out
}

func Test_Index_InsertAndSearch(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	ids, err := idx.Insert(ctx, chunks([]float32{1, 0}, []float32{0, 1}, []float32{-1, 0}))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("want 3 ids, got %d", len(ids))
	}

	hits, err := idx.Search(ctx, []float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].ID != ids[1] || hits[0].Text != "chunk 1" || hits[0].SequenceIndex != 1 || hits[0].Distance != 0 {
		t.Errorf("nearest hit = %+v", hits[0])
	}
	if hits[1].Distance < hits[0].Distance {
		t.Error("hits not sorted by distance")
	}
}

func Test_Index_EmptyCollection(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t, 2)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("want 0 hits, got %d", len(hits))
	}
	if ids, err := idx.Insert(context.Background(), nil); ids != nil || err != nil {
		t.Errorf("empty insert = %v, %v", ids, err)
	}
}

func Test_Index_DimensionMismatchRejectsWholeBatch(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t, 2)
	ctx := context.Background()

	_, err := idx.Insert(ctx, chunks([]float32{1, 0}, []float32{1, 0, 0}))
	if !errors.Is(err, rag.ErrIndexWrite) {
		t.Fatalf("want ErrIndexWrite, got %v", err)
	}
	if n, _ := idx.Size(ctx); n != 0 {
		t.Errorf("size = %d after rejected batch, want 0", n)
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, rag.ErrIndexRead) {
		t.Errorf("query dimension: want ErrIndexRead, got %v", err)
	}
}

func Test_Index_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := OpenIndex(path, "docs", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := idx.Insert(ctx, chunks([]float32{1, 0, 0}, []float32{0, 1, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = idx.Close()

	if _, err := OpenIndex(path, "docs", 4); !errors.Is(err, rag.ErrIndexWrite) {
		t.Fatalf("reopen with other dimension: want ErrIndexWrite, got %v", err)
	}

	idx, err = OpenIndex(path, "docs", 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	if n, err := idx.Size(ctx); err != nil || n != 2 {
		t.Errorf("size after reopen = %d, %v; want 2", n, err)
	}
	if err := idx.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func Test_Index_CollectionsAreIsolated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	a, err := OpenIndex(path, "a", 2)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	if _, err := a.Insert(ctx, chunks([]float32{1, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	b, err := OpenIndex(path, "b", 8)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()
	if n, _ := b.Size(ctx); n != 0 {
		t.Errorf("collection b sees %d entries of a", n)
	}
	if b.Name() != "b" || b.Info().Metric != rag.MetricL2 {
		t.Errorf("unexpected name/info: %s %+v", b.Name(), b.Info())
	}
}

func Test_Index_VectorCodec(t *testing.T) {
	t.Parallel()
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d: %f != %f", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("want error for truncated blob")
	}
}

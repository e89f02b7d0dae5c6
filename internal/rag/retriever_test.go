package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.EmbedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("stub: unknown text %q: %w", text, ErrEmbedding)
	}
	return v, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

// failingIndex fails every Search.
type failingIndex struct{ FlatIndex }

func (f *failingIndex) Search(context.Context, []float32, int) ([]RetrievedChunk, error) {
	return nil, fmt.Errorf("stub: connection refused: %w", ErrIndexRead)
}

func newTestRetriever(t *testing.T) (*DefaultRetriever, *stubEmbedder) {
	t.Helper()
	emb := &stubEmbedder{dim: 2, vectors: map[string][]float32{
		"north":     {0, 1},
		"east":      {1, 0},
		"northeast": {0.7071, 0.7071},
	}}
	idx, _ := NewFlatIndex("c", 2)
	_, err := idx.Insert(context.Background(), []EmbeddedChunk{
		{Chunk: Chunk{Text: "points north", Source: "a"}, Vector: []float32{0, 1}},
		{Chunk: Chunk{Text: "points east", Source: "b"}, Vector: []float32{1, 0}},
		{Chunk: Chunk{Text: "points south", Source: "c"}, Vector: []float32{0, -1}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	r, err := NewRetriever(emb, idx, 3)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	return r, emb
}

func TestNewRetriever_NilArgs(t *testing.T) {
	t.Parallel()
	idx, _ := NewFlatIndex("c", 2)
	if _, err := NewRetriever(nil, idx, 3); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&stubEmbedder{}, nil, 3); err == nil {
		t.Error("expected error for nil index")
	}
	r, _ := NewRetriever(&stubEmbedder{}, idx, 0)
	if r.defaultTopK != 3 {
		t.Errorf("defaultTopK = %d, want 3", r.defaultTopK)
	}
}

func TestRetriever_Threshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		query     string
		k         int
		threshold float32
		want      []string
	}{
		{"no threshold returns top k", "north", 2, 0, []string{"points north", "points east"}},
		{"negative disables filter", "north", 3, -1, []string{"points north", "points east", "points south"}},
		{"exact only", "north", 3, 0.99, []string{"points north"}},
		// cos(45deg) ~= 0.707 passes 0.7; south is -0.707 and clamps to 0.
		{"diagonal", "northeast", 3, 0.7, []string{"points north", "points east"}},
		{"nothing passes", "north", 3, 1.01, []string{}},
		{"default k", "east", 0, 0, []string{"points east", "points north", "points south"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRetriever(t)
			hits, err := r.Retrieve(context.Background(), tc.query, tc.k, tc.threshold)
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			got := make([]string, len(hits))
			for i, h := range hits {
				got[i] = h.Text
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("hit %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestRetriever_EmptyQuery(t *testing.T) {
	t.Parallel()
	r, emb := newTestRetriever(t)
	_, err := r.Retrieve(context.Background(), "   ", 3, 0)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
	if emb.calls != 0 {
		t.Error("embedder called for empty query")
	}
}

func TestRetriever_PropagatesErrorKinds(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{dim: 2, err: fmt.Errorf("backend down: %w", ErrEmbedding)}
	idx, _ := NewFlatIndex("c", 2)
	r, _ := NewRetriever(emb, idx, 3)
	if _, err := r.Retrieve(context.Background(), "north", 3, 0); !errors.Is(err, ErrEmbedding) {
		t.Errorf("embed failure: error = %v, want ErrEmbedding", err)
	}

	emb = &stubEmbedder{dim: 2, vectors: map[string][]float32{"north": {0, 1}}}
	r, _ = NewRetriever(emb, &failingIndex{}, 3)
	if _, err := r.Retrieve(context.Background(), "north", 3, 0); !errors.Is(err, ErrIndexRead) {
		t.Errorf("search failure: error = %v, want ErrIndexRead", err)
	}
}

func TestRetriever_EmptyIndex(t *testing.T) {
	t.Parallel()
	emb := &stubEmbedder{dim: 2, vectors: map[string][]float32{"north": {0, 1}}}
	idx, _ := NewFlatIndex("c", 2)
	r, _ := NewRetriever(emb, idx, 3)
	hits, err := r.Retrieve(context.Background(), "north", 3, 0.5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty index", len(hits))
	}
}

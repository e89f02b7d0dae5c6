package embedder

import (
	"context"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	t.Parallel()
	h := NewHashEmbedder(64)
	a, _ := h.Embed(context.Background(), []string{"Vector databases store embeddings"})
	b, _ := h.Embed(context.Background(), []string{"vector DATABASES store, embeddings!"})
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("case and punctuation changed the vector at %d", i)
		}
	}
}

func TestHashEmbedder_Dimension(t *testing.T) {
	t.Parallel()
	h := NewHashEmbedder(384)
	vecs, err := h.Embed(context.Background(), []string{"one", "two words", ""})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vecs {
		if len(v) != 384 {
			t.Errorf("vector %d has len %d, want 384", i, len(v))
		}
	}
}

func TestHashEmbedder_LexicalSimilarity(t *testing.T) {
	t.Parallel()
	e, _ := NewEngine(NewHashEmbedder(384), EngineConfig{Dimension: 384})
	vecs, err := e.Embed(context.Background(), []string{
		"the cat sat on the mat",
		"the cat sat on a mat",
		"quarterly revenue grew eight percent",
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	dot := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	if near, far := dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]); near <= far {
		t.Errorf("similar sentences scored %f, unrelated %f", near, far)
	}
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).Embed(ctx, []string{"x"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration embeds two sentences through a locally
// running Ollama and checks the engine contract end to end.
//
// Prerequisites:
//
//	ollama pull all-minilm
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	engine, err := NewEngine(NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}),
		EngineConfig{Dimension: defaultMiniLMDimensions})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := engine.Ping(ctx); err != nil {
		t.Skipf("ollama not reachable at %s: %v", host, err)
	}

	texts := []string{
		"Milvus stores vectors in collections partitioned by an IVF index.",
		"The invoice is due within thirty days of receipt.",
	}
	vecs, err := engine.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if n := norm(v); n < 0.99 || n > 1.01 {
			t.Errorf("embedding[%d] norm = %f, want 1", i, n)
		}
	}
	t.Logf("model=%s dim=%d", model, len(vecs[0]))
}

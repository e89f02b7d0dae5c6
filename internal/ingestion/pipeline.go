// Package ingestion turns documents into indexed chunks. Extractors convert
// a URL, PDF, image, or plain-text file into raw text; the Pipeline chunks
// that text, embeds every chunk in one batch, and inserts the batch into the
// vector index; the Loader composes the two for the CLI and HTTP server.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Ingester indexes raw document text. *Pipeline satisfies it.
type Ingester interface {
	// Ingest chunks, embeds, and inserts rawText and returns the number of
	// chunks stored. A zero cc uses the ingester's default chunking.
	Ingest(ctx context.Context, rawText, source string, cc chunker.Config) (int, error)
}

// Pipeline runs validate → chunk → embed → insert for one document at a time.
// It is safe for concurrent use when its embedder and index are.
type Pipeline struct {
	// embedder converts chunk texts into vectors.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index rag.VectorIndex

	// splitter is the default chunker, used when Ingest receives a zero config.
	splitter *chunker.Splitter

	// log receives progress and outcome records.
	log *slog.Logger
}

// NewPipeline constructs a Pipeline. A zero cfg uses chunker.DefaultConfig.
func NewPipeline(embedder rag.Embedder, index rag.VectorIndex, cfg chunker.Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg.IsZero() {
		cfg = chunker.DefaultConfig()
	}
	splitter, err := chunker.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embedder: embedder, index: index, splitter: splitter, log: log}, nil
}

// Ingest indexes rawText under source and returns the number of chunks
// stored. Nothing is written unless every chunk embedded successfully, and a
// cancelled context never starts the insert.
func (p *Pipeline) Ingest(ctx context.Context, rawText, source string, cc chunker.Config) (int, error) {
	start := time.Now()

	if strings.TrimSpace(rawText) == "" {
		return 0, fmt.Errorf("ingestion: document text is empty: %w", rag.ErrValidation)
	}
	if strings.TrimSpace(source) == "" {
		return 0, fmt.Errorf("ingestion: source must not be empty: %w", rag.ErrValidation)
	}

	splitter := p.splitter
	if !cc.IsZero() {
		s, err := chunker.New(cc)
		if err != nil {
			return 0, fmt.Errorf("ingestion: %w", err)
		}
		splitter = s
	}

	chunks := splitter.Chunk(rawText, source)
	p.log.Debug("ingestion: chunked document",
		slog.String("source", source),
		slog.Int("chunks", len(chunks)),
	)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embedding %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks: %w",
			len(vectors), len(chunks), rag.ErrEmbedding)
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("ingestion: cancelled before insert of %s: %w", source, err)
	}

	entries := make([]rag.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		entries[i] = rag.EmbeddedChunk{Chunk: c, Vector: vectors[i]}
	}
	ids, err := p.index.Insert(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("ingestion: insert %s: %w", source, err)
	}

	p.log.Info("ingestion: document indexed",
		slog.String("source", source),
		slog.Int("chunks", len(ids)),
		slog.Duration("duration", time.Since(start)),
	)
	return len(ids), nil
}

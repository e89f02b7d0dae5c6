package rag

import (
	"context"
	"fmt"
	"strings"
)

// DefaultRetriever implements Retriever by embedding the query, searching
// the index, and dropping hits whose score falls below the threshold.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder QueryEmbedder

	// index performs the nearest-neighbour search.
	index VectorIndex

	// defaultTopK is used when Retrieve is called with k <= 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever.
// defaultTopK sets the result count used when Retrieve is called with k <= 0.
func NewRetriever(embedder QueryEmbedder, index VectorIndex, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &DefaultRetriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds query and returns at most k chunks with Score() >= threshold.
// When nothing passes the threshold the result is empty; the bar is never
// lowered to produce hits.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, k int, threshold float32) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("rag: query must not be empty: %w", ErrValidation)
	}
	if k <= 0 {
		k = r.defaultTopK
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	if threshold <= 0 {
		return hits, nil
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score() >= threshold {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

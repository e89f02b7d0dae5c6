// Package rag defines the core types and interfaces of the retrieval
// pipeline: chunks, embeddings, the vector index, and the retriever that
// composes them. Concrete index backends (in-memory flat and IVF, Qdrant)
// live here too; the SQLite index lives in package store.
package rag

import (
	"context"
	"math"
)

// Chunk is a bounded-size segment of a document's text. It is the unit of
// embedding and retrieval.
type Chunk struct {
	// Text is the chunk content.
	Text string

	// Source identifies the document the chunk came from (URL or filename).
	Source string

	// SequenceIndex is the zero-based position of the chunk within its document.
	SequenceIndex int
}

// EmbeddedChunk is a Chunk paired with its embedding vector.
type EmbeddedChunk struct {
	Chunk

	// Vector has exactly the embedding engine's dimension.
	Vector []float32
}

// RetrievedChunk is a search hit returned by a VectorIndex.
type RetrievedChunk struct {
	// ID is the identifier the index assigned at insert time.
	ID string

	// Text is the stored chunk content.
	Text string

	// Source is the stored document identifier.
	Source string

	// SequenceIndex is the stored position of the chunk within its document.
	SequenceIndex int

	// Distance is the Euclidean distance to the query vector. Smaller is
	// more relevant.
	Distance float32
}

// Score converts Distance into a similarity in [0, 1]. For unit-length
// vectors the squared L2 distance is 2 - 2cos, so this is the cosine
// similarity clamped to the unit interval.
func (c RetrievedChunk) Score() float32 {
	d := float64(c.Distance)
	s := 1 - d*d/2
	return float32(math.Max(0, math.Min(1, s)))
}

// Answer is the final product of a query.
type Answer struct {
	// Text is the generated answer or a fixed fallback message.
	Text string `json:"answer"`

	// Sources lists the distinct sources of the retrieved chunks.
	Sources []string `json:"sources"`

	// Confidence is a heuristic in [0, 1]. Not a calibrated probability.
	Confidence float64 `json:"confidence"`
}

// IndexInfo names the metric and structure a VectorIndex searches with.
// Different structures may rank differently for the same query, so the pair
// is reported rather than assumed interchangeable.
type IndexInfo struct {
	// Backend is the implementation name (flat, ivf, qdrant, sqlite).
	Backend string `json:"backend"`

	// Metric is the distance function (always "l2" in this module).
	Metric string `json:"metric"`

	// Structure describes the search structure (e.g. "flat", "ivf(nlist=128,nprobe=10)").
	Structure string `json:"structure"`
}

// MetricL2 is the Euclidean distance metric shared by every index backend.
const MetricL2 = "l2"

// VectorIndex persists embedded chunks and answers nearest-neighbour queries.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Insert persists entries and returns the IDs assigned to them, in input
	// order. An empty input is a no-op. Either every entry becomes visible
	// or none does; entries are visible to Search once Insert returns.
	Insert(ctx context.Context, entries []EmbeddedChunk) ([]string, error)

	// Search returns at most topK entries ordered by ascending distance.
	// An empty collection yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, topK int) ([]RetrievedChunk, error)

	// Size returns the number of entries in the collection.
	Size(ctx context.Context) (int, error)

	// Name returns the collection name.
	Name() string

	// Info reports the metric and structure used by Search.
	Info() IndexInfo

	// Close releases any resources held by the index.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is an Embedder that also embeds single texts and knows its
// output dimension. *embedder.Engine satisfies it.
type QueryEmbedder interface {
	Embedder

	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed vector length D.
	Dimension() int
}

// Retriever fetches the chunks most relevant to a query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns at most k chunks whose score passes threshold,
	// ordered by ascending distance. A threshold <= 0 disables filtering.
	Retrieve(ctx context.Context, query string, k int, threshold float32) ([]RetrievedChunk, error)
}

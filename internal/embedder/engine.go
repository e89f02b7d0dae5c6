package embedder

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultBatchSize is the number of texts sent to the backend per request.
	DefaultBatchSize = 64
	// DefaultConcurrency bounds the number of batches in flight at once.
	DefaultConcurrency = 4
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Dimension is the fixed vector length D every output must have.
	Dimension int

	// BatchSize is the maximum number of texts per backend call.
	// Defaults to DefaultBatchSize.
	BatchSize int

	// Concurrency bounds how many batches run in parallel.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// Serialize forces one backend call at a time. Set it for backends that
	// are not safe for concurrent use.
	Serialize bool
}

// Engine wraps an embedding backend and enforces the embedding contract:
// output order matches input order, every vector has length Dimension, and
// vectors are L2-normalised. Any violation is reported as rag.ErrEmbedding
// rather than returned to the caller as a malformed vector.
type Engine struct {
	// backend performs the actual embedding calls.
	backend rag.Embedder
	// cfg holds the resolved configuration.
	cfg EngineConfig
	// mu serializes backend calls when cfg.Serialize is set.
	mu sync.Mutex
}

// NewEngine constructs an Engine around backend.
func NewEngine(backend rag.Embedder, cfg EngineConfig) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedder: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Engine{backend: backend, cfg: cfg}, nil
}

// Dimension returns the fixed vector length D.
func (e *Engine) Dimension() int { return e.cfg.Dimension }

// Embed converts texts into normalised vectors, parallel to the input.
// Texts are split into batches that run concurrently; if any batch fails
// the whole call fails and no partial result is returned.
func (e *Engine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.call(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (e *Engine) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// call runs one backend request and validates its output.
func (e *Engine) call(ctx context.Context, batch []string) ([][]float32, error) {
	if e.cfg.Serialize {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	vecs, err := e.backend.Embed(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w: %w", rag.ErrEmbedding, err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder: expected %d vectors, got %d: %w", len(batch), len(vecs), rag.ErrEmbedding)
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != e.cfg.Dimension {
			return nil, fmt.Errorf("embedder: vector %d has dimension %d, expected %d: %w",
				i, len(v), e.cfg.Dimension, rag.ErrEmbedding)
		}
		out[i] = normalize(v)
	}
	return out, nil
}

// normalize returns a unit-length copy of v. A zero vector is returned as
// zeros since it has no direction.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// pinger is implemented by backends that can report their own reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes the backend when it supports probing, and otherwise reports
// healthy since local backends have nothing to reach.
func (e *Engine) Ping(ctx context.Context) error {
	if p, ok := e.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

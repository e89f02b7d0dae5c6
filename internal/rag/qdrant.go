package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside each Qdrant point.
const (
	payloadText     = "text"
	payloadSource   = "source"
	payloadSequence = "sequence_index"
)

// QdrantConfig holds connection parameters for a Qdrant collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: document_chunks).
	Collection string

	// VectorSize is the embedding dimension stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex on a Qdrant collection configured for
// Euclidean distance. Qdrant searches with its HNSW graph, so results are
// approximate for large collections. Writes wait for the server to apply
// them, which gives read-after-write within and across processes talking to
// the same node; replicated clusters follow Qdrant's own consistency.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client. It is safe for concurrent use.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists with
// the expected vector size, creating it if necessary.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set: %w", ErrValidation)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "document_chunks"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection if missing, and otherwise checks
// that its vector size matches the configured dimension.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if exists {
		info, err := q.client.GetCollectionInfo(ctx, q.cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant: failed to read collection %q: %w", q.cfg.Collection, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != q.cfg.VectorSize {
			return fmt.Errorf("qdrant: collection %q has vector size %d, embedder produces %d: %w",
				q.cfg.Collection, size, q.cfg.VectorSize, ErrIndexWrite)
		}
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// Insert upserts all entries in a single request and waits for it to apply.
func (q *QdrantIndex) Insert(ctx context.Context, entries []EmbeddedChunk) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entries))
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for i, e := range entries {
		if uint64(len(e.Vector)) != q.cfg.VectorSize {
			return nil, fmt.Errorf("qdrant: entry %d has dimension %d, collection expects %d: %w",
				i, len(e.Vector), q.cfg.VectorSize, ErrIndexWrite)
		}
		ids[i] = uuid.NewString()
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ids[i]),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:     e.Text,
				payloadSource:   e.Source,
				payloadSequence: int64(e.SequenceIndex),
			}),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: upsert failed: %w: %w", ErrIndexWrite, err)
	}
	return ids, nil
}

// Search queries the collection and returns hits ordered by ascending
// Euclidean distance. With Distance_Euclid Qdrant reports the distance
// itself as the score.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]RetrievedChunk, error) {
	if err := checkQuery(ctx, vector, topK, int(q.cfg.VectorSize)); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %w", ErrIndexRead, err)
	}

	out := make([]RetrievedChunk, 0, len(points))
	for _, p := range points {
		c := RetrievedChunk{
			ID:       p.GetId().GetUuid(),
			Distance: p.GetScore(),
		}
		if payload := p.GetPayload(); payload != nil {
			c.Text = payload[payloadText].GetStringValue()
			c.Source = payload[payloadSource].GetStringValue()
			c.SequenceIndex = int(payload[payloadSequence].GetIntegerValue())
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b RetrievedChunk) int { return cmp.Compare(a.Distance, b.Distance) })
	return out, nil
}

// Size returns the exact number of points in the collection.
func (q *QdrantIndex) Size(ctx context.Context) (int, error) {
	exact := true
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w: %w", ErrIndexRead, err)
	}
	return int(n), nil
}

// Name returns the collection name.
func (q *QdrantIndex) Name() string { return q.cfg.Collection }

// Info reports Euclidean distance over Qdrant's HNSW graph.
func (q *QdrantIndex) Info() IndexInfo {
	return IndexInfo{Backend: "qdrant", Metric: MetricL2, Structure: "hnsw"}
}

// Ping calls the Qdrant HealthCheck RPC.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

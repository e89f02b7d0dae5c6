package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

const (
	// DefaultNList is the number of IVF partitions, matching the IVF_FLAT
	// parameters the collection schema was designed around.
	DefaultNList = 128
	// DefaultNProbe is the number of partitions scanned per query.
	DefaultNProbe = 10

	// trainFactor is the minimum number of vectors per partition before
	// k-means training is attempted.
	trainFactor = 4
	// kmeansIterations bounds Lloyd iterations per training run.
	kmeansIterations = 10
)

// IVFConfig configures an IVFIndex.
type IVFConfig struct {
	// Name is the collection name.
	Name string
	// Dimension is the required vector length.
	Dimension int
	// NList is the number of k-means partitions. Defaults to DefaultNList.
	NList int
	// NProbe is the number of partitions probed per query. Defaults to DefaultNProbe.
	NProbe int
}

// IVFIndex is an approximate in-memory VectorIndex using an inverted file:
// vectors are clustered into NList partitions by k-means, and a query scans
// only the NProbe partitions whose centroids are closest.
//
// Until NList*4 vectors are present the index is untrained and scans
// everything. It retrains whenever the collection doubles in size since the
// last training run. If the probed partitions hold fewer than
// min(topK, size) vectors, probing widens until they do.
type IVFIndex struct {
	mu  sync.RWMutex
	cfg IVFConfig

	entries []*storedEntry

	// centroids is nil while the index is untrained.
	centroids [][]float32
	// lists[i] holds offsets into entries assigned to centroids[i].
	lists [][]int
	// trainedAt is the entry count at the last training run.
	trainedAt int
}

// NewIVFIndex constructs an empty IVFIndex.
func NewIVFIndex(cfg IVFConfig) (*IVFIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("rag: ivf index dimension must be positive, got %d: %w", cfg.Dimension, ErrValidation)
	}
	if cfg.NList <= 0 {
		cfg.NList = DefaultNList
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = DefaultNProbe
	}
	if cfg.NProbe > cfg.NList {
		cfg.NProbe = cfg.NList
	}
	return &IVFIndex{cfg: cfg}, nil
}

// Insert appends entries, assigning them to partitions if trained, and
// retrains when the growth threshold is crossed.
func (x *IVFIndex) Insert(ctx context.Context, entries []EmbeddedChunk) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	stored, err := prepareEntries(entries, x.cfg.Dimension)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: ivf insert: %w: %w", ErrIndexWrite, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	base := len(x.entries)
	x.entries = append(x.entries, stored...)

	switch {
	case x.needsTraining():
		x.train()
	case x.centroids != nil:
		for i := range stored {
			c := nearestCentroid(x.centroids, stored[i].vector)
			x.lists[c] = append(x.lists[c], base+i)
		}
	}

	return entryIDs(stored), nil
}

// Search probes the closest partitions and ranks their members by L2 distance.
func (x *IVFIndex) Search(ctx context.Context, vector []float32, topK int) ([]RetrievedChunk, error) {
	if err := checkQuery(ctx, vector, topK, x.cfg.Dimension); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.centroids == nil {
		hits := make([]hit, 0, len(x.entries))
		for _, e := range x.entries {
			hits = append(hits, hit{entry: e, distance: l2(vector, e.vector)})
		}
		return rankHits(hits, topK), nil
	}

	order := make([]int, len(x.centroids))
	for i := range order {
		order[i] = i
	}
	cdist := make([]float32, len(x.centroids))
	for i, c := range x.centroids {
		cdist[i] = l2Squared(vector, c)
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(cdist[a], cdist[b]) })

	want := min(topK, len(x.entries))
	var hits []hit
	for probed, c := range order {
		if probed >= x.cfg.NProbe && len(hits) >= want {
			break
		}
		for _, off := range x.lists[c] {
			e := x.entries[off]
			hits = append(hits, hit{entry: e, distance: l2(vector, e.vector)})
		}
	}
	return rankHits(hits, topK), nil
}

// Size returns the number of stored entries.
func (x *IVFIndex) Size(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

// Name returns the collection name.
func (x *IVFIndex) Name() string { return x.cfg.Name }

// Info reports the IVF parameters.
func (x *IVFIndex) Info() IndexInfo {
	return IndexInfo{
		Backend:   "ivf",
		Metric:    MetricL2,
		Structure: fmt.Sprintf("ivf(nlist=%d,nprobe=%d)", x.cfg.NList, x.cfg.NProbe),
	}
}

// Close is a no-op; the index lives only in memory.
func (x *IVFIndex) Close() error { return nil }

// Trained reports whether partitions have been built.
func (x *IVFIndex) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.centroids != nil
}

// needsTraining must be called with mu held.
func (x *IVFIndex) needsTraining() bool {
	n := len(x.entries)
	if n < x.cfg.NList*trainFactor {
		return false
	}
	return x.centroids == nil || n >= 2*x.trainedAt
}

// train runs deterministic k-means over all entries and rebuilds the lists.
// Centroids are seeded from evenly spaced entries. Must be called with mu held.
func (x *IVFIndex) train() {
	n := len(x.entries)
	k := x.cfg.NList
	dim := x.cfg.Dimension

	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = slices.Clone(x.entries[i*n/k].vector)
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, e := range x.entries {
			c := nearestCentroid(centroids, e.vector)
			if iter == 0 || c != assign[i] {
				changed = true
			}
			assign[i] = c
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, e := range x.entries {
			c := assign[i]
			counts[c]++
			for d, v := range e.vector {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			// An empty partition keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	lists := make([][]int, k)
	for i, e := range x.entries {
		c := nearestCentroid(centroids, e.vector)
		lists[c] = append(lists[c], i)
	}

	x.centroids = centroids
	x.lists = lists
	x.trainedAt = n
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestDist := 0, l2Squared(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := l2Squared(v, centroids[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

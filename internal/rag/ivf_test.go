package rag

import (
	"context"
	"strings"
	"testing"
)

func TestNewIVFIndex_Defaults(t *testing.T) {
	t.Parallel()
	idx, err := NewIVFIndex(IVFConfig{Name: "c", Dimension: 8})
	if err != nil {
		t.Fatalf("NewIVFIndex: %v", err)
	}
	info := idx.Info()
	if info.Metric != MetricL2 || info.Structure != "ivf(nlist=128,nprobe=10)" {
		t.Errorf("Info() = %+v", info)
	}

	idx, _ = NewIVFIndex(IVFConfig{Name: "c", Dimension: 8, NList: 4, NProbe: 9})
	if !strings.Contains(idx.Info().Structure, "nprobe=4") {
		t.Errorf("nprobe not capped at nlist: %s", idx.Info().Structure)
	}
}

func TestIVFIndex_TrainsAtThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, _ := NewIVFIndex(IVFConfig{Name: "c", Dimension: 8, NList: 4, NProbe: 1})
	vecs := randomUnit(3, 16, 8)

	if _, err := idx.Insert(ctx, embedded(vecs[:15], "doc")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if idx.Trained() {
		t.Fatal("trained below nlist*4 vectors")
	}
	if _, err := idx.Insert(ctx, embedded(vecs[15:], "doc")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !idx.Trained() {
		t.Fatal("not trained at nlist*4 vectors")
	}
}

func TestIVFIndex_AgreesWithFlatOnExactMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vecs := randomUnit(11, 400, 16)

	ivf, _ := NewIVFIndex(IVFConfig{Name: "c", Dimension: 16, NList: 8, NProbe: 2})
	flat, _ := NewFlatIndex("c", 16)
	// Two batches so some entries join lists after training.
	for _, batch := range [][][]float32{vecs[:200], vecs[200:]} {
		if _, err := ivf.Insert(ctx, embedded(batch, "doc")); err != nil {
			t.Fatalf("ivf Insert: %v", err)
		}
		if _, err := flat.Insert(ctx, embedded(batch, "doc")); err != nil {
			t.Fatalf("flat Insert: %v", err)
		}
	}

	for i := 0; i < len(vecs); i += 37 {
		a, err := ivf.Search(ctx, vecs[i], 1)
		if err != nil {
			t.Fatalf("ivf Search: %v", err)
		}
		b, _ := flat.Search(ctx, vecs[i], 1)
		if a[0].Text != b[0].Text || a[0].Distance != 0 {
			t.Errorf("query %d: ivf=%q (%f) flat=%q", i, a[0].Text, a[0].Distance, b[0].Text)
		}
	}
}

func TestIVFIndex_ReturnsMinTopKSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, _ := NewIVFIndex(IVFConfig{Name: "c", Dimension: 8, NList: 8, NProbe: 1})
	vecs := randomUnit(5, 64, 8)
	if _, err := idx.Insert(ctx, embedded(vecs, "doc")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !idx.Trained() {
		t.Fatal("expected trained index")
	}

	for _, k := range []int{1, 10, 40, 64, 100} {
		hits, err := idx.Search(ctx, vecs[0], k)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != min(k, 64) {
			t.Errorf("k=%d: got %d hits, want %d", k, len(hits), min(k, 64))
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Distance < hits[i-1].Distance {
				t.Fatalf("k=%d: results not sorted", k)
			}
		}
	}
}

func TestIVFIndex_RetrainsOnGrowth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx, _ := NewIVFIndex(IVFConfig{Name: "c", Dimension: 8, NList: 2, NProbe: 1})
	vecs := randomUnit(9, 20, 8)

	_, _ = idx.Insert(ctx, embedded(vecs[:8], "doc"))
	if idx.trainedAt != 8 {
		t.Fatalf("trainedAt = %d, want 8", idx.trainedAt)
	}
	_, _ = idx.Insert(ctx, embedded(vecs[8:12], "doc"))
	if idx.trainedAt != 8 {
		t.Errorf("retrained before doubling: trainedAt = %d", idx.trainedAt)
	}
	_, _ = idx.Insert(ctx, embedded(vecs[12:], "doc"))
	if idx.trainedAt != 20 {
		t.Errorf("trainedAt = %d after doubling, want 20", idx.trainedAt)
	}

	total := 0
	for _, l := range idx.lists {
		total += len(l)
	}
	if total != 20 {
		t.Errorf("lists hold %d entries, want 20", total)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// fakeRetriever returns canned chunks and records the parameters it saw.
type fakeRetriever struct {
	chunks []rag.RetrievedChunk
	err    error

	mu        sync.Mutex
	gotK      int
	gotThresh float32
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int, threshold float32) ([]rag.RetrievedChunk, error) {
	f.mu.Lock()
	f.gotK, f.gotThresh = k, threshold
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

// generatorFunc adapts a function to TextGenerator.
type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func staticGenerator(text string) generatorFunc {
	return func(context.Context, string) (string, error) { return text, nil }
}

// blockingGenerator waits for its context to end and counts attempts.
func blockingGenerator(calls *atomic.Int32) generatorFunc {
	return func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	}
}

type memRecorder struct {
	mu      sync.Mutex
	entries []store.Entry
	err     error
}

func (m *memRecorder) Append(_ context.Context, e store.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *countingObserver) ObserveQuery(o Outcome, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func chunks(sources ...string) []rag.RetrievedChunk {
	out := make([]rag.RetrievedChunk, len(sources))
	for i, s := range sources {
		out[i] = rag.RetrievedChunk{
			ID:       fmt.Sprintf("id-%d", i),
			Text:     fmt.Sprintf("text %d", i),
			Source:   s,
			Distance: float32(i) * 0.1,
		}
	}
	return out
}

func fastConfig() Config {
	return Config{
		GenerationTimeout:    50 * time.Millisecond,
		RetryInitialInterval: time.Millisecond,
	}
}

func newOrchestrator(t *testing.T, r rag.Retriever, g TextGenerator, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(r, g, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func ptr[T any](v T) *T { return &v }

func TestNew_RejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, staticGenerator("x"), Config{}); err == nil {
		t.Error("New(nil retriever) expected error")
	}
	if _, err := New(&fakeRetriever{}, nil, Config{}); err == nil {
		t.Error("New(nil generator) expected error")
	}
}

func TestAsk_NoContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generatorFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "unused", nil
	})
	o := newOrchestrator(t, &fakeRetriever{}, gen, fastConfig())

	res, err := o.Ask(context.Background(), Query{Text: "anything?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeNoContext {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeNoContext)
	}
	if res.Answer.Text != NoContextText {
		t.Errorf("Text = %q, want %q", res.Answer.Text, NoContextText)
	}
	if res.Answer.Sources == nil || len(res.Answer.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil slice", res.Answer.Sources)
	}
	if res.Answer.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", res.Answer.Confidence)
	}
	if calls.Load() != 0 {
		t.Errorf("generator called %d times, want 0", calls.Load())
	}
}

func TestAsk_AnsweredConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want float64
	}{
		{1, 1.0 / 3},
		{2, 2.0 / 3},
		{3, 0.99},
		{5, 0.99},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			t.Parallel()
			src := make([]string, tc.n)
			for i := range src {
				src[i] = fmt.Sprintf("doc%d", i)
			}
			o := newOrchestrator(t, &fakeRetriever{chunks: chunks(src...)}, staticGenerator("  an answer  "), fastConfig())

			res, err := o.Ask(context.Background(), Query{Text: "q"})
			if err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if res.Outcome != OutcomeAnswered {
				t.Fatalf("Outcome = %q, want answered", res.Outcome)
			}
			if res.Answer.Text != "an answer" {
				t.Errorf("Text = %q, want trimmed completion", res.Answer.Text)
			}
			if res.Answer.Confidence != tc.want {
				t.Errorf("Confidence = %v, want %v", res.Answer.Confidence, tc.want)
			}
			if len(res.Chunks) != tc.n {
				t.Errorf("Chunks = %d, want %d", len(res.Chunks), tc.n)
			}
		})
	}
}

func TestAsk_SourcesDeduplicated(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("b", "a", "b", "c", "a")}, staticGenerator("ok"), fastConfig())
	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	want := []string{"b", "a", "c"}
	if fmt.Sprint(res.Answer.Sources) != fmt.Sprint(want) {
		t.Errorf("Sources = %v, want %v", res.Answer.Sources, want)
	}
}

func TestAsk_DegradedOnTimeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1", "doc2")}, blockingGenerator(&calls), fastConfig())

	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask returned error on generation failure: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("Outcome = %q, want degraded", res.Outcome)
	}
	if res.Answer.Text != DegradedText {
		t.Errorf("Text = %q, want %q", res.Answer.Text, DegradedText)
	}
	if res.Answer.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", res.Answer.Confidence)
	}
	if len(res.Answer.Sources) != 2 {
		t.Errorf("Sources = %v, want both documents", res.Answer.Sources)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2 (one retry)", got)
	}
}

func TestAsk_TimeoutHoldsWhenGeneratorIgnoresContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	gen := generatorFunc(func(context.Context, string) (string, error) {
		<-release
		return "late", nil
	})
	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1")}, gen, fastConfig())

	start := time.Now()
	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("Outcome = %q, want degraded", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Ask took %v, timeout not enforced", elapsed)
	}
}

func TestAsk_RetrySucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generatorFunc(func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient upstream error")
		}
		return "second time lucky", nil
	})
	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1")}, gen, fastConfig())

	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeAnswered || res.Answer.Text != "second time lucky" {
		t.Errorf("got %q / %q, want answered after retry", res.Outcome, res.Answer.Text)
	}
}

func TestAsk_EmptyCompletionDegrades(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1")}, staticGenerator("   \n"), fastConfig())
	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("Outcome = %q, want degraded", res.Outcome)
	}
}

func TestAsk_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		retriever *fakeRetriever
		query     string
		wantErr   error
	}{
		{
			name:      "empty question",
			retriever: &fakeRetriever{},
			query:     "  ",
			wantErr:   rag.ErrValidation,
		},
		{
			name:      "retrieval failure",
			retriever: &fakeRetriever{err: fmt.Errorf("retriever: %w: %w", rag.ErrIndexRead, errors.New("connection refused"))},
			query:     "q",
			wantErr:   rag.ErrIndexRead,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := newOrchestrator(t, tc.retriever, staticGenerator("x"), fastConfig())
			_, err := o.Ask(context.Background(), Query{Text: tc.query})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Ask error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAsk_Parameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		query      Query
		wantK      int
		wantThresh float32
	}{
		{"defaults keep every chunk", Config{}, Query{Text: "q"}, DefaultTopK, 0},
		{"configured", Config{TopK: 7, Threshold: ptr[float32](0.5)}, Query{Text: "q"}, 7, 0.5},
		{"query overrides", Config{TopK: 7}, Query{Text: "q", TopK: 2, Threshold: ptr[float32](0.9)}, 2, 0.9},
		{"explicit zero disables", Config{Threshold: ptr[float32](0.5)}, Query{Text: "q", Threshold: ptr[float32](0)}, DefaultTopK, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := &fakeRetriever{}
			o := newOrchestrator(t, r, staticGenerator("x"), tc.cfg)
			if _, err := o.Ask(context.Background(), tc.query); err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if r.gotK != tc.wantK {
				t.Errorf("k = %d, want %d", r.gotK, tc.wantK)
			}
			if r.gotThresh != tc.wantThresh {
				t.Errorf("threshold = %v, want %v", r.gotThresh, tc.wantThresh)
			}
		})
	}
}

func TestAsk_RecordsAndObserves(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	obs := &countingObserver{}
	cfg := fastConfig()
	cfg.Recorder, cfg.Observer = rec, obs
	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1")}, staticGenerator("blue"), cfg)

	if _, err := o.Ask(context.Background(), Query{Text: "What color is the sky?"}); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Question != "What color is the sky?" || e.Answer != "blue" || e.Outcome != string(OutcomeAnswered) {
		t.Errorf("entry = %+v", e)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeAnswered {
		t.Errorf("observed = %v, want [answered]", obs.outcomes)
	}
}

func TestAsk_RecorderFailureIgnored(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Recorder = &memRecorder{err: errors.New("disk full")}
	o := newOrchestrator(t, &fakeRetriever{chunks: chunks("doc1")}, staticGenerator("ok"), cfg)

	res, err := o.Ask(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeAnswered {
		t.Errorf("Outcome = %q, want answered", res.Outcome)
	}
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]float64{0: 0, 1: 1.0 / 3, 3: 0.99, 100: 0.99} {
		if got := Confidence(n); got != want {
			t.Errorf("Confidence(%d) = %v, want %v", n, got, want)
		}
	}
}

// TestAsk_EndToEnd ingests a one-sentence document through the real chunker,
// embedding engine and flat index, then asks about it.
func TestAsk_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	engine, err := embedder.NewEngine(embedder.NewHashEmbedder(128), embedder.EngineConfig{Dimension: 128})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	index, err := rag.NewFlatIndex("document_chunks", 128)
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline, err := ingestion.NewPipeline(engine, index, chunker.Config{}, log)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	n, err := pipeline.Ingest(ctx, "The sky is blue. Water is wet.", "doc1", chunker.Config{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("Ingest stored %d chunks, want 1", n)
	}

	retriever, err := rag.NewRetriever(engine, index, DefaultTopK)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	var prompt string
	gen := generatorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "The sky is blue [doc1].", nil
	})
	o := newOrchestrator(t, retriever, gen, fastConfig())

	res, err := o.Ask(ctx, Query{Text: "What color is the sky?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Outcome != OutcomeAnswered {
		t.Fatalf("Outcome = %q, want answered", res.Outcome)
	}
	if len(res.Answer.Sources) != 1 || res.Answer.Sources[0] != "doc1" {
		t.Errorf("Sources = %v, want [doc1]", res.Answer.Sources)
	}
	if res.Answer.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", res.Answer.Confidence)
	}
	if want := "From doc1:\nThe sky is blue. Water is wet."; !contains(prompt, want) {
		t.Errorf("prompt missing context block %q:\n%s", want, prompt)
	}

	empty, err := rag.NewFlatIndex("empty", 128)
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	emptyRetriever, err := rag.NewRetriever(engine, empty, DefaultTopK)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	o = newOrchestrator(t, emptyRetriever, gen, fastConfig())
	res, err = o.Ask(ctx, Query{Text: "What color is the sky?"})
	if err != nil {
		t.Fatalf("Ask on empty index: %v", err)
	}
	if res.Outcome != OutcomeNoContext {
		t.Errorf("Outcome on empty index = %q, want no_context", res.Outcome)
	}
}

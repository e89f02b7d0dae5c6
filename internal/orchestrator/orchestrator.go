// Package orchestrator answers questions over the vector index. Each query
// runs a small state machine: retrieve the relevant chunks, assemble a
// grounded prompt, generate under a hard timeout with one retry, and fall
// back to a fixed message when generation fails.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Fixed answers for the non-generated outcomes.
const (
	NoContextText = "No relevant information found"
	DegradedText  = "Sorry, I couldn't generate an answer right now. The sources below may still help."
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTopK                 = 3
	// DefaultThreshold disables score filtering. Callers opt in through
	// Config.Threshold or Query.Threshold.
	DefaultThreshold            = 0
	DefaultGenerationTimeout    = 30 * time.Second
	DefaultRetryInitialInterval = 500 * time.Millisecond

	// maxConfidence caps the heuristic so no answer claims certainty.
	maxConfidence    = 0.99
	// saturatingChunks is the retrieved-chunk count at which confidence peaks.
	saturatingChunks = 3
)

// Outcome is the terminal state a query reached.
type Outcome string

const (
	// OutcomeNoContext means retrieval found nothing above the threshold.
	OutcomeNoContext Outcome = "no_context"
	// OutcomeAnswered means the generator produced an answer.
	OutcomeAnswered Outcome = "answered"
	// OutcomeDegraded means generation failed after retrieval succeeded.
	OutcomeDegraded Outcome = "degraded"
)

// Query is one question. Zero TopK and a nil Threshold select the
// orchestrator defaults; an explicit threshold of 0 disables filtering.
type Query struct {
	Text      string
	TopK      int
	Threshold *float32
}

// Result carries the answer together with the outcome and the chunks that
// were retrieved for it.
type Result struct {
	Answer  rag.Answer
	Outcome Outcome
	Chunks  []rag.RetrievedChunk
}

// TextGenerator produces a completion for a fully assembled prompt.
// Implementations must be safe to call from multiple goroutines.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder persists answered queries. *store.SQLiteStore satisfies it.
type Recorder interface {
	Append(ctx context.Context, e store.Entry) error
}

// Observer receives one event per finished query.
type Observer interface {
	ObserveQuery(outcome Outcome, elapsed time.Duration)
}

// Config tunes an Orchestrator.
type Config struct {
	// TopK is the number of chunks retrieved when a query does not say.
	TopK int
	// Threshold is the minimum score when a query does not say.
	// Nil means DefaultThreshold, which keeps every retrieved chunk.
	Threshold *float32
	// MaxContextTokens bounds the context block of the prompt.
	MaxContextTokens int
	// GenerationTimeout bounds each generation attempt.
	GenerationTimeout time.Duration
	// RetryInitialInterval is the wait before the single retry.
	RetryInitialInterval time.Duration
	// Recorder, when set, receives every finished query. Optional.
	Recorder Recorder
	// Observer, when set, receives outcome metrics. Optional.
	Observer Observer
}

// Orchestrator composes a Retriever and a TextGenerator.
// It is safe for concurrent use.
type Orchestrator struct {
	retriever rag.Retriever
	generator TextGenerator
	cfg       Config
	threshold float32
}

// New constructs an Orchestrator. Zero Config fields take their defaults.
func New(retriever rag.Retriever, generator TextGenerator, cfg Config) (*Orchestrator, error) {
	if retriever == nil {
		return nil, fmt.Errorf("orchestrator: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("orchestrator: generator must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultRetryInitialInterval
	}
	threshold := float32(DefaultThreshold)
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	return &Orchestrator{retriever: retriever, generator: generator, cfg: cfg, threshold: threshold}, nil
}

// Ask answers q. Retrieval failures are returned as errors; generation
// failures never are, they produce OutcomeDegraded instead.
func (o *Orchestrator) Ask(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	if strings.TrimSpace(q.Text) == "" {
		return Result{}, fmt.Errorf("orchestrator: question is empty: %w", rag.ErrValidation)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	threshold := o.threshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	chunks, err := o.retriever.Retrieve(ctx, q.Text, topK, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: retrieve: %w", err)
	}

	var res Result
	switch {
	case len(chunks) == 0:
		res = Result{
			Answer:  rag.Answer{Text: NoContextText, Sources: []string{}, Confidence: 0},
			Outcome: OutcomeNoContext,
			Chunks:  chunks,
		}
	default:
		sources := Sources(chunks)
		prompt := BuildPrompt(q.Text, budget.FitChunks(chunks, o.cfg.MaxContextTokens))
		text, genErr := o.generate(ctx, prompt)
		if genErr != nil {
			log.Warn("orchestrator: generation failed, degrading",
				slog.Int("chunks", len(chunks)),
				slog.String("error", genErr.Error()),
			)
			res = Result{
				Answer:  rag.Answer{Text: DegradedText, Sources: sources, Confidence: 0},
				Outcome: OutcomeDegraded,
				Chunks:  chunks,
			}
		} else {
			res = Result{
				Answer:  rag.Answer{Text: text, Sources: sources, Confidence: Confidence(len(chunks))},
				Outcome: OutcomeAnswered,
				Chunks:  chunks,
			}
		}
	}

	elapsed := time.Since(start)
	log.Info("orchestrator: query finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("chunks", len(chunks)),
		slog.Float64("confidence", res.Answer.Confidence),
		slog.Duration("duration", elapsed),
	)
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveQuery(res.Outcome, elapsed)
	}
	o.record(ctx, q.Text, res)
	return res, nil
}

// generate runs the generator with a per-attempt timeout and a single retry.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, 1), ctx)

	var text string
	err := backoff.Retry(func() error {
		out, err := o.attempt(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	}, b)
	if err != nil {
		return "", err
	}
	return text, nil
}

// attempt makes one bounded generation call. The deadline holds even when
// the generator ignores its context.
func (o *Orchestrator) attempt(ctx context.Context, prompt string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := o.generator.Generate(actx, prompt)
		ch <- reply{text, err}
	}()

	select {
	case <-actx.Done():
		return "", fmt.Errorf("orchestrator: %w: %w", rag.ErrGeneration, actx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("orchestrator: %w: %w", rag.ErrGeneration, r.err)
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", fmt.Errorf("orchestrator: empty completion: %w", rag.ErrGeneration)
		}
		return text, nil
	}
}

// record appends res to the query log. Failures are logged, never returned.
func (o *Orchestrator) record(ctx context.Context, question string, res Result) {
	if o.cfg.Recorder == nil {
		return
	}
	// The log entry outlives a cancelled request.
	ctx = context.WithoutCancel(ctx)
	err := o.cfg.Recorder.Append(ctx, store.Entry{
		Question:   question,
		Answer:     res.Answer.Text,
		Outcome:    string(res.Outcome),
		Confidence: res.Answer.Confidence,
		Sources:    res.Answer.Sources,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("orchestrator: query log append failed", slog.String("error", err.Error()))
	}
}

// Confidence maps the number of retrieved chunks to min(0.99, n/3).
func Confidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(maxConfidence, float64(n)/saturatingChunks)
}

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/orchestrator"
)

const namespace = "docqa"

// labelHandler partitions HTTP metrics by route pattern rather than raw path.
const labelHandler = "handler"

// Metrics holds the Prometheus collectors for the HTTP surface and the
// pipeline behind it. It also satisfies orchestrator.Observer, so the same
// instance is handed to the orchestrator at wiring time.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec

	// ingestDocumentsTotal counts load attempts by kind and outcome
	// ("ok", "unsupported", "insufficient_text", "error").
	ingestDocumentsTotal *prometheus.CounterVec
	ingestChunksTotal    *prometheus.CounterVec

	queriesTotal         *prometheus.CounterVec
	queryDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers every collector against reg. Tests pass a fresh
// prometheus.Registry to stay hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route pattern and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		ingestDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents submitted for ingestion, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ingestChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to the index, by document kind.",
		}, []string{"kind"}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Questions answered, by terminal outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency from retrieval to final answer.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
}

// ObserveQuery records one finished query.
func (m *Metrics) ObserveQuery(outcome orchestrator.Outcome, elapsed time.Duration) {
	m.queriesTotal.WithLabelValues(string(outcome)).Inc()
	m.queryDurationSeconds.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// observeIngest records one load attempt.
func (m *Metrics) observeIngest(kind ingestion.Kind, chunks int, err error) {
	m.ingestDocumentsTotal.WithLabelValues(string(kind), ingestOutcome(err)).Inc()
	if err == nil {
		m.ingestChunksTotal.WithLabelValues(string(kind)).Add(float64(chunks))
	}
}

func ingestOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ingestion.ErrUnsupportedType):
		return "unsupported"
	case errors.Is(err, ingestion.ErrInsufficientText):
		return "insufficient_text"
	default:
		return "error"
	}
}

// instrument records request count and latency. It must wrap the ServeMux
// directly so the matched pattern is visible on r after dispatch.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, statusCode(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/orchestrator"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout bounds reading a request, uploads included.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing a response. It must exceed the worst-case
	// generation time of two attempts plus retrieval.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps POST /load/file bodies (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the base logger. Defaults to slog.Default.
	Logger *slog.Logger
	// Pingers are the dependency probes run by GET /api/ready.
	Pingers []Pinger
	// RateLimit is the sustained per-IP rate on /load/* and /query
	// (requests/second). Defaults to 10.
	RateLimit float64
	// RateBurst is the per-IP burst. Defaults to 20.
	RateBurst int
	// Metrics receives request and pipeline metrics. When nil a private
	// registry is created.
	Metrics *Metrics
	// MetricsGatherer backs GET /metrics. Defaults to the registry Metrics
	// was built on when New creates it, else prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the collaborators the handlers call. History may be nil, which
// disables GET /history.
type Deps struct {
	Loader   documentLoader
	Answerer answerer
	Index    indexStatus
	History  historyReader
}

// documentLoader ingests URLs and uploads. *ingestion.Loader satisfies it.
type documentLoader interface {
	LoadURL(ctx context.Context, rawURL string) (ingestion.Result, error)
	LoadFileKind(ctx context.Context, filename string, kind ingestion.Kind, data []byte) (ingestion.Result, error)
}

// answerer answers questions. *orchestrator.Orchestrator satisfies it.
type answerer interface {
	Ask(ctx context.Context, q orchestrator.Query) (orchestrator.Result, error)
}

// indexStatus reports the collection behind GET /status. Every
// rag.VectorIndex satisfies it.
type indexStatus interface {
	Size(ctx context.Context) (int, error)
	Name() string
	Info() rag.IndexInfo
}

// historyReader lists recent queries. *store.SQLiteStore satisfies it.
type historyReader interface {
	Recent(ctx context.Context, n int) ([]store.Entry, error)
}

// Server serves the document QA API.
type Server struct {
	deps       Deps
	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	pingers    []Pinger
	metrics    *Metrics
	stopRL     func()
}

// loadURLRequest is the JSON body for POST /load/url.
type loadURLRequest struct {
	URL string `json:"url"`
}

// loadResponse is returned by both load routes.
type loadResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Source string `json:"source"`
}

// queryRequest is the JSON body for POST /query. Question and Query are
// aliases; Question wins when both are set.
type queryRequest struct {
	Question       string   `json:"question"`
	Query          string   `json:"query"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float32 `json:"score_threshold"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string `json:"status"`
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
	Backend    string `json:"backend"`
	Metric     string `json:"metric"`
	Structure  string `json:"structure"`
}

// historyResponse is returned by GET /history.
type historyResponse struct {
	Entries []store.Entry `json:"entries"`
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

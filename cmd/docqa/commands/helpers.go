package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/orchestrator"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

const (
	// defaultCollection names the index collection when QDRANT_COLLECTION is unset.
	defaultCollection = "document_chunks"
	// defaultIndexBackend is used when INDEX_BACKEND is unset.
	defaultIndexBackend = "qdrant"
)

// stack is the shared retrieval stack every command builds on.
type stack struct {
	engine *embedder.Engine
	index  rag.VectorIndex
}

// Close releases the index.
func (s *stack) Close() {
	_ = s.index.Close()
}

// buildStack validates the embedding configuration, constructs the engine
// and opens the index selected by INDEX_BACKEND at the engine's dimension.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	if err := embedder.ValidateConfig(log); err != nil {
		return nil, err
	}
	engine, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embedder.Provider()),
		slog.Int("dimensions", engine.Dimension()),
	)

	index, err := buildIndex(ctx, engine.Dimension(), log)
	if err != nil {
		return nil, err
	}
	info := index.Info()
	log.Info("index ready",
		slog.String("collection", index.Name()),
		slog.String("backend", info.Backend),
		slog.String("metric", info.Metric),
		slog.String("structure", info.Structure),
	)
	return &stack{engine: engine, index: index}, nil
}

// buildIndex opens the vector index selected by INDEX_BACKEND:
//
//	qdrant (default)  QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION, QDRANT_API_KEY, QDRANT_TLS
//	sqlite            INDEX_DB_PATH (default: ~/.docqa/index.db)
//	flat              in-memory exact scan
//	ivf               in-memory inverted file, IVF_NLIST and IVF_NPROBE
func buildIndex(ctx context.Context, dim int, log *slog.Logger) (rag.VectorIndex, error) {
	collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)

	switch backend := getEnvOrDefault("INDEX_BACKEND", defaultIndexBackend); backend {
	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dim), //nolint:gosec // dimension is validated positive by the engine
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		return idx, nil

	case "sqlite":
		path := os.Getenv("INDEX_DB_PATH")
		if path == "" {
			var err error
			if path, err = store.DefaultIndexPath(); err != nil {
				return nil, err
			}
		}
		idx, err := store.OpenIndex(path, collection, dim)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite index opened", slog.String("path", path))
		return idx, nil

	case "flat":
		log.Warn("flat index is in-memory, loaded documents are lost on exit")
		return rag.NewFlatIndex(collection, dim)

	case "ivf":
		log.Warn("ivf index is in-memory, loaded documents are lost on exit")
		return rag.NewIVFIndex(rag.IVFConfig{
			Name:      collection,
			Dimension: dim,
			NList:     getEnvInt("IVF_NLIST", rag.DefaultNList),
			NProbe:    getEnvInt("IVF_NPROBE", rag.DefaultNProbe),
		})

	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q, valid values: qdrant, sqlite, flat, ivf", backend)
	}
}

// buildLoader wires the extractors and ingestion pipeline over st.
func buildLoader(st *stack, log *slog.Logger) (*ingestion.Loader, error) {
	pipeline, err := ingestion.NewPipeline(st.engine, st.index, chunker.ConfigFromEnv(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	ocr := ingestion.NewTesseractRunner("")
	if err := ocr.Available(); err != nil {
		log.Warn("ocr unavailable, image uploads will fail", slog.Any("error", err))
	}

	return ingestion.NewLoader(pipeline, nil, ocr, log)
}

// buildOrchestrator composes retrieval over st with generation by chatModel.
// rec and obs may be nil interfaces.
func buildOrchestrator(st *stack, chatModel model.BaseChatModel, modelName string, rec orchestrator.Recorder, obs orchestrator.Observer) (*orchestrator.Orchestrator, error) {
	topK := getEnvInt("RETRIEVAL_TOP_K", orchestrator.DefaultTopK)

	retriever, err := rag.NewRetriever(st.engine, st.index, topK)
	if err != nil {
		return nil, err
	}

	cfg := orchestrator.Config{
		TopK:              topK,
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", orchestrator.DefaultGenerationTimeout),
		Recorder:          rec,
		Observer:          obs,
	}
	if v, ok := getEnvFloat32("RETRIEVAL_SCORE_THRESHOLD"); ok {
		cfg.Threshold = &v
	}
	return orchestrator.New(retriever, orchestrator.NewChatGenerator(chatModel, modelName), cfg)
}

// buildChatModel constructs the chat model selected by MODEL_PROVIDER.
func buildChatModel(ctx context.Context, log *slog.Logger) (model.BaseChatModel, *provider.Config, error) {
	cfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return chatModel, cfg, nil
}

// openHistory opens the query log. DOCQA_HISTORY_DB overrides the default
// path (~/.docqa/history.db); "disabled" turns it off. Failures disable the
// log rather than the command.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("DOCQA_HISTORY_DB")
	if dbPath == store.DisabledPath {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 reports the named variable as a float32 and whether it was
// set to a parseable value.
func getEnvFloat32(key string) (float32, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// getEnvFloat64 returns the float value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat64(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration parses the named variable as a Go duration ("30s"), or
// returns fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

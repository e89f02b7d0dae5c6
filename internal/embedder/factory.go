package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultHFModel     = "sentence-transformers/all-MiniLM-L6-v2"

	// defaultMiniLMDimensions is the output size of all-MiniLM-L6-v2, which
	// both the Ollama and Hugging Face defaults serve.
	defaultMiniLMDimensions = 384
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the embedding vector size for the given backend.
// Callers that pre-configure an index (e.g. Qdrant collection creation)
// use this rather than hardcoding a value. EMBEDDING_DIMENSIONS always wins.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return defaultMiniLMDimensions
	}
}

// Provider returns the configured embedding backend name (default: ollama).
func Provider() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")
}

// NewFromEnv constructs an Engine around the backend selected by
// EMBEDDING_PROVIDER.
//
// Environment variables:
//
//	EMBEDDING_PROVIDER   = ollama | openai | azure | huggingface | local (default: ollama)
//	EMBEDDING_MODEL      overrides the backend's default model
//	EMBEDDING_DIMENSIONS overrides the default dimension (ollama/huggingface/local: 384, openai/azure: 1536)
//	EMBEDDING_API_KEY    overrides the inherited API key
//	EMBEDDING_ENDPOINT   overrides the inherited endpoint
//	EMBEDDING_BATCH_SIZE texts per backend request (default: 64)
func NewFromEnv() (*Engine, error) {
	backendName := Provider()
	dims := DefaultDimensions(backendName)

	var (
		backend   rag.Embedder
		serialize bool
	)
	switch backendName {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		backend = NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		})

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
		})

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		backend = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		})

	case "huggingface":
		apiKey := firstEnv("EMBEDDING_API_KEY", "HF_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: huggingface requires HF_API_KEY or EMBEDDING_API_KEY")
		}
		backend = NewHuggingFaceEmbedder(&HuggingFaceConfig{
			BaseURL: getEnv("EMBEDDING_ENDPOINT"),
			APIKey:  apiKey,
			Model:   getEnvOrDefault("EMBEDDING_MODEL", defaultHFModel),
		})
		// The free inference tier rejects bursts of parallel requests.
		serialize = true

	case "local":
		backend = NewHashEmbedder(dims)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, huggingface, local", backendName)
	}

	return NewEngine(backend, EngineConfig{
		Dimension: dims,
		BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		Serialize: serialize,
	})
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
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

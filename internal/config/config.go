// Package config layers a YAML file under the environment. Every YAML field
// maps to exactly one env var; a value from the file is applied only when
// that variable is unset, so the environment always wins.
//
// File search order:
//  1. --config CLI flag (explicit path; must exist)
//  2. DOCQA_CONFIG environment variable
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
//
// Without a file the system runs from env vars alone.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the YAML document. Sections follow the pipeline stages.
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	History    HistoryConfig    `yaml:"history"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	// Backend is one of flat, ivf, sqlite, qdrant.
	Backend string       `yaml:"backend"`
	DBPath  string       `yaml:"db_path"`
	IVF     IVFConfig    `yaml:"ivf"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// IVFConfig tunes the in-process inverted-file index.
type IVFConfig struct {
	NList  int `yaml:"nlist"`
	NProbe int `yaml:"nprobe"`
}

// QdrantConfig holds the Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is better supplied as QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	BatchSize  int    `yaml:"batch_size"`
}

// ChunkingConfig sets the default splitter.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig sets query defaults. ScoreThreshold is a pointer so an
// explicit 0 (filtering off) is distinguishable from an absent key.
type RetrievalConfig struct {
	TopK           int      `yaml:"top_k"`
	ScoreThreshold *float64 `yaml:"score_threshold"`
}

// GenerationConfig selects the chat model and its tuning.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds one generation attempt, as a Go duration ("30s").
	Timeout string `yaml:"timeout"`

	OpenRouter OpenAICompatConfig `yaml:"openrouter"`
	Ollama     OllamaConfig       `yaml:"ollama"`
	OpenAI     OpenAICompatConfig `yaml:"openai"`
	Azure      AzureConfig        `yaml:"azure"`
	Ark        OpenAICompatConfig `yaml:"ark"`
	Gemini     GeminiConfig       `yaml:"gemini"`
}

// OpenAICompatConfig covers the key/model/base-URL backends.
type OpenAICompatConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds the Ollama chat settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// AzureConfig holds the Azure OpenAI chat settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds the Gemini chat settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ServerConfig holds the HTTP listener and rate-limit settings.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig locates the query log. "disabled" turns it off.
type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds the Langfuse credentials.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping binds each YAML field to its env var. An empty string means
// the field was absent.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_DB_PATH", func(c *Config) string { return c.Index.DBPath }},
	{"IVF_NLIST", func(c *Config) string { return intStr(c.Index.IVF.NList) }},
	{"IVF_NPROBE", func(c *Config) string { return intStr(c.Index.IVF.NProbe) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Index.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},

	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},

	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},

	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_SCORE_THRESHOLD", func(c *Config) string { return floatPtrStr(c.Retrieval.ScoreThreshold) }},

	{"MODEL_PROVIDER", func(c *Config) string { return c.Generation.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Generation.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Generation.Temperature) }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return c.Generation.Timeout }},
	{"OPENROUTER_API_KEY", func(c *Config) string { return c.Generation.OpenRouter.APIKey }},
	{"OPENROUTER_MODEL", func(c *Config) string { return c.Generation.OpenRouter.Model }},
	{"OPENROUTER_BASE_URL", func(c *Config) string { return c.Generation.OpenRouter.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Generation.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Generation.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Generation.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Generation.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Generation.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Generation.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Generation.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Generation.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Generation.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Generation.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Generation.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Generation.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Generation.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Generation.Gemini.Model }},

	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"SERVER_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"SERVER_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},

	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},

	{"DOCQA_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},

	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// ErrConfigNotFound is returned when an explicitly requested file is missing.
var ErrConfigNotFound = errors.New("config file not found")

// Load reads the first config file found and exports its values as env
// vars that are not already set. It returns the path loaded, or "" when no
// file was found on the implicit search path.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		v := m.value(&cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, v); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

// resolveConfigPath returns the first config file that exists. A missing
// explicit path is an error; a missing implicit one is not.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %s: %w", explicit, ErrConfigNotFound)
		}
		return explicit, nil
	}

	candidates := []string{os.Getenv("DOCQA_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".docqa", "config.yaml"))
	}
	candidates = append(candidates, "docqa.yaml")

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// floatPtrStr renders an explicitly set value, including zero.
func floatPtrStr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

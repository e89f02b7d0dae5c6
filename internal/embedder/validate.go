package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat models
// which do not produce usable sentence embeddings.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateConfig is a pre-flight check on the embedding environment. It
// returns an error for configuration that cannot work (missing key,
// unknown backend, non-positive dimension) and logs a warning when
// EMBEDDING_MODEL looks like a chat model. Call it before opening the
// index so a dimension mismatch surfaces at startup, not at first ingest.
func ValidateConfig(log *slog.Logger) error {
	backend := Provider()

	switch backend {
	case "ollama", "local":
	case "openai":
		if firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "huggingface":
		if firstEnv("EMBEDDING_API_KEY", "HF_API_KEY") == "" {
			return fmt.Errorf("embedder: no Hugging Face token found, set HF_API_KEY or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, huggingface, local", backend)
	}

	if v := getEnv("EMBEDDING_DIMENSIONS"); v != "" && getEnvInt("EMBEDDING_DIMENSIONS", 0) <= 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be a positive integer, got %q", v)
	}

	if model := getEnv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, retrieval quality will suffer",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. all-minilm, text-embedding-3-small"),
		)
	}
	return nil
}

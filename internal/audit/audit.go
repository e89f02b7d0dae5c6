// Package audit records one structured line per CLI command so operators can
// see which backends and settings a run resolved. Credentials appear only as
// "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// trackedKeys is the ordered list of env vars written to every audit line.
var trackedKeys = []string{
	"INDEX_BACKEND",
	"QDRANT_HOST",
	"QDRANT_PORT",
	"QDRANT_COLLECTION",
	"QDRANT_API_KEY",
	"INDEX_DB_PATH",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_DIMENSIONS",
	"EMBEDDING_API_KEY",
	"CHUNK_SIZE",
	"CHUNK_OVERLAP",
	"RETRIEVAL_TOP_K",
	"RETRIEVAL_SCORE_THRESHOLD",
	"MODEL_PROVIDER",
	"OPENROUTER_API_KEY",
	"OPENROUTER_MODEL",
	"OLLAMA_HOST",
	"OLLAMA_MODEL",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_DEPLOYMENT",
	"ARK_API_KEY",
	"ARK_MODEL",
	"GOOGLE_API_KEY",
	"GEMINI_MODEL",
	"HF_API_KEY",
	"DOCQA_HISTORY_DB",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
}

// secretSuffixes marks env vars whose values are credentials.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN"}

// LogCommandStart emits the audit line for command.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(trackedKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, key := range trackedKeys {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// SanitiseKey returns "set" or "unset" for secrets and the value (or
// "unset") otherwise.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}

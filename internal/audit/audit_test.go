package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value, want string
	}{
		{"OPENROUTER_API_KEY", "sk-or-abc", "set"},
		{"OPENROUTER_API_KEY", "", "unset"},
		{"LANGFUSE_SECRET_KEY", "lf-sk", "set"},
		{"MODEL_PROVIDER", "openrouter", "openrouter"},
		{"MODEL_PROVIDER", "", "unset"},
		{"QDRANT_HOST", "localhost", "localhost"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Parallel()
			if got := SanitiseKey(tc.key, tc.value); got != tc.want {
				t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
			}
		})
	}
}

func TestTrackedSecretsAreDetected(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"QDRANT_API_KEY", "EMBEDDING_API_KEY", "HF_API_KEY", "GOOGLE_API_KEY", "LANGFUSE_PUBLIC_KEY"} {
		if !IsSecret(key) {
			t.Errorf("IsSecret(%q) = false", key)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/docqa.yaml"); got != "/tmp/docqa.yaml" {
		t.Errorf("expected '/tmp/docqa.yaml', got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		p := home + "/.docqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docqa/config.yaml" {
			t.Errorf("expected '~/.docqa/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-super-secret")
	t.Setenv("MODEL_PROVIDER", "openrouter")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "ask", "")

	if bytes.Contains(buf.Bytes(), []byte("sk-or-super-secret")) {
		t.Fatalf("audit line leaked a secret: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if line["command"] != "ask" || line["OPENROUTER_API_KEY"] != "set" || line["MODEL_PROVIDER"] != "openrouter" {
		t.Errorf("unexpected audit line: %v", line)
	}
	if line["config_file"] != "none" {
		t.Errorf("config_file = %v, want none", line["config_file"])
	}
}

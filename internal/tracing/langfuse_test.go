package tracing

import (
	"io"
	"log/slog"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Enabled() {
		t.Error("Enabled() = true with secret key missing")
	}
	cfg.SecretKey = "sk-lf"
	if !cfg.Enabled() {
		t.Error("Enabled() = false with both keys set")
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	flush := Setup(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if flush == nil {
		t.Fatal("Setup returned nil flush")
	}
	flush()
}

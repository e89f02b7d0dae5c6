package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWithOptions_Formats(t *testing.T) {
	t.Parallel()

	var jsonBuf, textBuf bytes.Buffer
	NewWithOptions(Options{Writer: &jsonBuf}).Info("hello", slog.String("k", "v"))
	NewWithOptions(Options{Format: "text", Writer: &textBuf}).Info("hello", slog.String("k", "v"))

	var rec map[string]any
	if err := json.Unmarshal(jsonBuf.Bytes(), &rec); err != nil {
		t.Fatalf("json handler output not JSON: %v: %s", err, jsonBuf.String())
	}
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Errorf("json record = %v", rec)
	}
	if !strings.Contains(textBuf.String(), "msg=hello k=v") {
		t.Errorf("text record = %q", textBuf.String())
	}
}

func TestNewWithOptions_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Writer: &buf})
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext on empty context should return slog.Default")
	}

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithOptions(Options{Writer: &buf}))
	ctx = With(ctx, slog.String("request_id", "abc"))
	FromContext(ctx).Info("scoped")

	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Errorf("scoped record missing request_id: %s", buf.String())
	}
}

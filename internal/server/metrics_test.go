package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/orchestrator"
)

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, defaultDeps())

	do(t, s, http.MethodGet, "/status", "", nil)
	w := do(t, s, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "docqa_http_requests_total") {
		t.Error("docqa_http_requests_total not found in /metrics output")
	}
}

func Test_Metrics_HTTPLabelledByPattern(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, defaultDeps())

	for range 3 {
		do(t, s, http.MethodGet, "/status", "", nil)
	}
	do(t, s, http.MethodGet, "/no/such/route", "", nil)

	got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /status", "200"))
	if got != 3 {
		t.Errorf("GET /status count = %v, want 3", got)
	}
	got = testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	if got != 1 {
		t.Errorf("unmatched count = %v, want 1", got)
	}
}

func Test_Metrics_QueryOutcome(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuery(orchestrator.OutcomeAnswered, 120*time.Millisecond)
	m.ObserveQuery(orchestrator.OutcomeAnswered, 80*time.Millisecond)
	m.ObserveQuery(orchestrator.OutcomeNoContext, time.Millisecond)

	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("answered")); got != 2 {
		t.Errorf("answered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("no_context")); got != 1 {
		t.Errorf("no_context = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queriesTotal.WithLabelValues("degraded")); got != 0 {
		t.Errorf("degraded = %v, want 0", got)
	}
}

func Test_Metrics_IngestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x: %w", ingestion.ErrUnsupportedType), "unsupported"},
		{fmt.Errorf("x: %w", ingestion.ErrInsufficientText), "insufficient_text"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range tests {
		if got := ingestOutcome(tc.err); got != tc.want {
			t.Errorf("ingestOutcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func Test_Metrics_LoadCountsChunks(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, defaultDeps())

	postJSON(t, s, "/load/url", `{"url":"https://example.com/a"}`)
	postJSON(t, s, "/load/url", `{"url":"https://example.com/b"}`)

	if got := testutil.ToFloat64(s.metrics.ingestDocumentsTotal.WithLabelValues("url", "ok")); got != 2 {
		t.Errorf("documents ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.ingestChunksTotal.WithLabelValues("url")); got != 6 {
		t.Errorf("chunks = %v, want 6", got)
	}
}

func Test_Metrics_SharedRegistryRejectsDuplicate(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("second NewMetrics on the same registry should panic")
		}
	}()
	NewMetrics(reg)
}

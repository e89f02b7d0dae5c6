package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	geminiModelsURL  = "https://generativelanguage.googleapis.com/v1beta/models"
	healthTimeout    = 5 * time.Second
)

// httpHealthCheck probes a model-listing endpoint. Listing models costs no
// tokens but still exercises the network path and the credentials.
type httpHealthCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck issues a GET and treats any 2xx as healthy.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, which may carry a key.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("provider: health check: %s: %w", redact(h.url), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check: %s returned %d", redact(h.url), resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a zero-cost probe for the selected backend, or nil when
// the backend has no listing endpoint and must be probed by generating.
func (c *Config) HealthCheck() HealthCheckConfig {
	client := &http.Client{Timeout: healthTimeout}
	bearer := func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + key}
	}

	switch c.Backend {
	case BackendOpenRouter:
		return &httpHealthCheck{
			url:     strings.TrimRight(c.OpenRouter.BaseURL, "/") + "/models",
			headers: bearer(c.OpenRouter.APIKey),
			client:  client,
		}
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimRight(c.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = defaultOpenAIURL
		}
		return &httpHealthCheck{
			url:     strings.TrimRight(base, "/") + "/models",
			headers: bearer(c.OpenAI.APIKey),
			client:  client,
		}
	case BackendAzure:
		return &httpHealthCheck{
			url: strings.TrimRight(c.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" +
				url.QueryEscape(c.AzureOpenAI.APIVersion),
			headers: map[string]string{"api-key": c.AzureOpenAI.APIKey},
			client:  client,
		}
	case BackendGemini:
		return &httpHealthCheck{
			url:    geminiModelsURL + "?key=" + url.QueryEscape(c.Gemini.APIKey),
			client: client,
		}
	default:
		return nil
	}
}

// redact strips the query string so API keys passed as parameters never
// reach logs.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

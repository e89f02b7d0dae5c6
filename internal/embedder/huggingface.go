package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// defaultHFBaseURL is the Hugging Face Inference router for hosted models.
const defaultHFBaseURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceEmbedder embeds text with the Hugging Face Inference
// feature-extraction pipeline, which returns one pooled vector per input for
// sentence-transformers models. It is safe for concurrent use.
type HuggingFaceEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	// BaseURL overrides the inference endpoint root (default: HF router).
	BaseURL string
	// APIKey is the Hugging Face access token.
	APIKey string
	// Model is the repository id (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	Model string
}

// NewHuggingFaceEmbedder constructs a HuggingFaceEmbedder.
func NewHuggingFaceEmbedder(cfg *HuggingFaceConfig) *HuggingFaceEmbedder {
	base := cfg.BaseURL
	if base == "" {
		base = defaultHFBaseURL
	}
	return &HuggingFaceEmbedder{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type hfRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed converts a batch of texts into embeddings parallel to the input.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	url := e.baseURL + "/" + e.model + "/pipeline/feature-extraction"
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if err := postJSON(ctx, e.client, url, headers, hfRequest{Inputs: texts}, &result); err != nil {
		return nil, fmt.Errorf("huggingface embedder: %w", err)
	}
	if len(result) != len(texts) {
		return nil, fmt.Errorf("huggingface embedder: expected %d embeddings, got %d", len(texts), len(result))
	}
	return result, nil
}

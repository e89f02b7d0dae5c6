// Package provider selects and constructs the chat model that turns retrieved
// context into answers. The backend is chosen at runtime from configuration.
// Supported backends: OpenRouter, Ollama, OpenAI, Azure OpenAI, Ark, Gemini.
package provider

import (
	"context"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOpenRouter selects the OpenRouter gateway (OpenAI-compatible).
	BackendOpenRouter Backend = "openrouter"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds the resolved provider configuration. Only the section that
// matches Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	OpenRouter  ProviderOpenRouter
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	// Tuning applies to every backend that accepts it.
	Tuning SharedTuning
}

// ProviderOpenRouter configures the OpenRouter backend.
type ProviderOpenRouter struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderOllama configures the Ollama backend.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI configures the OpenAI backend. BaseURL is optional and
// points the client at any OpenAI-compatible server.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI configures the Azure OpenAI backend.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk configures the Volcano Engine Ark backend.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderGemini configures the Gemini backend.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// HealthCheckConfig is implemented by probes that can confirm a backend is
// reachable without running a generation.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
)

// pingable is anything with a reachability probe: the Qdrant and SQLite
// indexes and the embedding engine all qualify.
type pingable interface {
	Ping(ctx context.Context) error
}

// namedPinger labels a pingable dependency.
type namedPinger struct {
	name string
	p    pingable
}

// NewPinger wraps p as a Pinger reported under name.
func NewPinger(name string, p pingable) Pinger {
	return &namedPinger{name: name, p: p}
}

func (n *namedPinger) Name() string                   { return n.name }
func (n *namedPinger) Ping(ctx context.Context) error { return n.p.Ping(ctx) }

// LLMPinger probes the chat model backend. It prefers the provider's
// zero-cost health check and only generates when none exists.
type LLMPinger struct {
	model       model.BaseChatModel
	healthCheck provider.HealthCheckConfig
	name        string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the health check, or a one-word generation when the backend
// has no listing endpoint. The latter consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}

	logging.FromContext(ctx).Debug("pinger: generating to probe backend without health endpoint",
		"backend", p.name,
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

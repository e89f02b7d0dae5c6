package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
)

// ChatGenerator adapts an eino chat model to TextGenerator. The prompt is
// sent as a single user message.
type ChatGenerator struct {
	model model.BaseChatModel
	name  string
}

// NewChatGenerator wraps m. name labels the model in traces.
func NewChatGenerator(m model.BaseChatModel, name string) *ChatGenerator {
	return &ChatGenerator{model: m, name: name}
}

// Generate runs one completion. Globally registered callback handlers
// (e.g. Langfuse) observe the call.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      g.name,
		Type:      "docqa",
		Component: components.ComponentOfChatModel,
	})
	msgs := []*schema.Message{schema.UserMessage(prompt)}
	logging.FromContext(ctx).Debug("orchestrator: generating",
		slog.String("model", g.name),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)
	msg, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("chat generator: %w", err)
	}
	if msg == nil {
		return "", fmt.Errorf("chat generator: model returned no message")
	}
	return msg.Content, nil
}

package capability

import (
	"context"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/pkg/anthropic"
)

// defaultMaxTokens applies when a prompt leaves MaxTokens unset.
const defaultMaxTokens = 1024

// AnthropicProvider generates text with Claude.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider over an existing client.
func NewAnthropicProvider(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }
func (p *AnthropicProvider) Close() error  { return nil }

// Generate sends the prompt as one user turn with a cached system prompt.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt Prompt) (*Generation, error) {
	maxTokens := int64(prompt.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reply, err := p.client.Complete(ctx, anthropic.Turn{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      prompt.System,
		CacheSystem: prompt.System != "",
		User:        prompt.User,
		Temperature: prompt.Temperature,
	})
	if err != nil {
		return nil, err
	}

	gen := &Generation{
		Text:     reply.Text,
		Provider: p.Name(),
		Model:    p.model,
		Usage: model.TokenUsage{
			InputTokens:         int(reply.Usage.InputTokens),
			OutputTokens:        int(reply.Usage.OutputTokens),
			CacheCreationTokens: int(reply.Usage.CacheCreationTokens),
			CacheReadTokens:     int(reply.Usage.CacheReadTokens),
		},
	}
	if reply.Model != "" {
		gen.Model = reply.Model
	}
	return gen, nil
}

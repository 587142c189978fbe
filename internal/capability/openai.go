package capability

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sells-group/lead-enricher/internal/model"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint. Azure sets the
// Azure API type; Model is then the deployment name.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Azure      bool
	APIVersion string
}

// OpenAIProvider generates text through langchaingo's OpenAI client, which
// covers both api.openai.com and Azure OpenAI deployments.
type OpenAIProvider struct {
	llm   llms.Model
	name  string
	model string
}

// NewOpenAIProvider builds the langchaingo client for cfg.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	name := "openai"
	if cfg.Azure {
		name = "azure"
		// The Azure client also insists on an embedding deployment; no
		// embeddings are requested.
		opts = append(opts, openai.WithAPIType(openai.APITypeAzure), openai.WithEmbeddingModel(cfg.Model))
		if cfg.APIVersion != "" {
			opts = append(opts, openai.WithAPIVersion(cfg.APIVersion))
		}
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, eris.Wrap(err, "openai: new client")
	}
	return newOpenAIProvider(llm, name, cfg.Model), nil
}

func newOpenAIProvider(llm llms.Model, name, modelID string) *OpenAIProvider {
	return &OpenAIProvider{llm: llm, name: name, model: modelID}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }
func (p *OpenAIProvider) Close() error  { return nil }

// Generate sends a system and a human message and returns the first choice.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt Prompt) (*Generation, error) {
	var msgs []llms.MessageContent
	if prompt.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt.User))

	opts := []llms.CallOption{llms.WithTemperature(prompt.Temperature)}
	if prompt.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(prompt.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return &Generation{Provider: p.name, Model: p.model}, nil
	}

	choice := resp.Choices[0]
	return &Generation{
		Text:     strings.TrimSpace(choice.Content),
		Provider: p.name,
		Model:    p.model,
		Usage: model.TokenUsage{
			InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		},
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

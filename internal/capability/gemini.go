package capability

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/lead-enricher/internal/model"
)

// GeminiConfig configures the Gemini Developer API provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Grounding enables the Google Search tool so research prompts can cite
	// current public information.
	Grounding bool
}

// GeminiProvider generates text with google.golang.org/genai.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	grounding bool
}

// NewGeminiProvider creates the genai client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &GeminiProvider{client: client, model: cfg.Model, grounding: cfg.Grounding}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }
func (p *GeminiProvider) Close() error  { return nil }

// Generate issues one GenerateContent call.
func (p *GeminiProvider) Generate(ctx context.Context, prompt Prompt) (*Generation, error) {
	cfg := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    genai.Ptr(float32(prompt.Temperature)),
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if prompt.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	if p.grounding {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return nil, err
	}

	gen := &Generation{
		Text:     strings.TrimSpace(resp.Text()),
		Provider: p.Name(),
		Model:    p.model,
	}
	if u := resp.UsageMetadata; u != nil {
		gen.Usage = model.TokenUsage{
			InputTokens:     int(u.PromptTokenCount),
			OutputTokens:    int(u.CandidatesTokenCount),
			CacheReadTokens: int(u.CachedContentTokenCount),
		}
	}
	return gen, nil
}

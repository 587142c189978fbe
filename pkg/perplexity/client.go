// Package perplexity asks Perplexity's online models about a lead when the
// profile page itself cannot be scraped.
package perplexity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/httpapi"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar-pro"
)

// Client answers one question with web-grounded text.
type Client interface {
	Ask(ctx context.Context, q Question) (*Answer, error)
}

// Question is a single-turn prompt.
type Question struct {
	Prompt string
	// System is optional.
	System string
	// Model overrides the client default.
	Model string
	// Temperature is sent only when positive.
	Temperature float64
	// Recency limits web results to "day", "week", "month" or "year".
	Recency string
}

// Answer is the model's reply.
type Answer struct {
	Text             string
	Citations        []string
	PromptTokens     int
	CompletionTokens int
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	SearchRecencyFilter string    `json:"search_recency_filter,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations"`
}

type settings struct {
	model string
	opts  []httpapi.Option
}

// Option configures NewClient.
type Option func(*settings)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.opts = append(s.opts, httpapi.WithBaseURL(u)) }
}

// WithModel sets the default model. Empty keeps sonar-pro.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHTTPClient swaps the transport.
func WithHTTPClient(d httpapi.Doer) Option {
	return func(s *settings) { s.opts = append(s.opts, httpapi.WithDoer(d)) }
}

type client struct {
	api   *httpapi.Client
	model string
}

// NewClient builds a Perplexity client.
func NewClient(apiKey string, opts ...Option) Client {
	s := settings{model: defaultModel}
	for _, o := range opts {
		o(&s)
	}
	return &client{
		api:   httpapi.New("perplexity", apiKey, defaultBaseURL, 60*time.Second, s.opts...),
		model: s.model,
	}
}

func (c *client) Ask(ctx context.Context, q Question) (*Answer, error) {
	if strings.TrimSpace(q.Prompt) == "" {
		return nil, eris.New("perplexity: empty prompt")
	}

	req := completionRequest{Model: q.Model, SearchRecencyFilter: q.Recency}
	if req.Model == "" {
		req.Model = c.model
	}
	if q.System != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: q.System})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: q.Prompt})
	if q.Temperature > 0 {
		t := q.Temperature
		req.Temperature = &t
	}

	resp, err := c.api.Send(ctx, httpapi.Request{Method: http.MethodPost, Path: "/chat/completions", Body: req})
	if err != nil {
		return nil, err
	}
	var out completionResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	ans := &Answer{
		Citations:        out.Citations,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}
	if len(out.Choices) > 0 {
		ans.Text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	return ans, nil
}

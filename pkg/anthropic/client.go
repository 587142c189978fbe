// Package anthropic sends single-turn stage prompts to Claude through the
// official SDK.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client completes one user turn.
type Client interface {
	Complete(ctx context.Context, turn Turn) (*Reply, error)
}

// Turn is a system prompt plus one user message.
type Turn struct {
	Model     string
	MaxTokens int64
	System    string
	// CacheSystem marks the system prompt as an ephemeral cache breakpoint.
	// Stage prompts repeat across leads, so later calls read the prefix
	// from cache.
	CacheSystem bool
	User        string
	Temperature float64
}

// Reply is the text and metering of a completed turn.
type Reply struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}

// Usage counts billed tokens, split by cache treatment.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// Option configures NewClient.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(o *[]option.RequestOption) {
		if u != "" {
			*o = append(*o, option.WithBaseURL(u))
		}
	}
}

type sdkClient struct {
	sdk sdk.Client
}

// NewClient builds an SDK-backed client. The SDK's own retries are off:
// a stage call is attempted once.
func NewClient(apiKey string, opts ...Option) Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &sdkClient{sdk: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) Complete(ctx context.Context, turn Turn) (*Reply, error) {
	if turn.MaxTokens <= 0 {
		return nil, eris.New("anthropic: max tokens must be positive")
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(turn.Model),
		MaxTokens:   turn.MaxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(turn.User))},
		Temperature: sdk.Float(turn.Temperature),
	}
	if turn.System != "" {
		block := sdk.TextBlockParam{Text: turn.System}
		if turn.CacheSystem {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = []sdk.TextBlockParam{block}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "" || b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Reply{
		Text:       text.String(),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:         msg.Usage.InputTokens,
			OutputTokens:        msg.Usage.OutputTokens,
			CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:     msg.Usage.CacheReadInputTokens,
		},
	}, nil
}

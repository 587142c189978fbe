package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireRequest struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	Temperature         *float64  `json:"temperature"`
	SearchRecencyFilter string    `json:"search_recency_filter"`
}

func newServer(t *testing.T, status int, body string, check func(wireRequest)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestAsk_Answer(t *testing.T) {
	base := newServer(t, http.StatusOK, `{
		"choices": [{"message": {"role": "assistant", "content": "  Jane Doe is VP Engineering at ExampleCo. "}}],
		"usage": {"prompt_tokens": 40, "completion_tokens": 12},
		"citations": ["https://example.com/a", "https://example.com/b"]
	}`, func(req wireRequest) {
		assert.Equal(t, defaultModel, req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, message{Role: "user", Content: "Who is Jane Doe?"}, req.Messages[0])
		assert.Nil(t, req.Temperature)
	})

	ans, err := NewClient("pk", WithBaseURL(base)).Ask(context.Background(), Question{Prompt: "Who is Jane Doe?"})
	require.NoError(t, err)
	assert.Equal(t, &Answer{
		Text:             "Jane Doe is VP Engineering at ExampleCo.",
		Citations:        []string{"https://example.com/a", "https://example.com/b"},
		PromptTokens:     40,
		CompletionTokens: 12,
	}, ans)
}

func TestAsk_RequestShape(t *testing.T) {
	base := newServer(t, http.StatusOK, `{"choices":[]}`, func(req wireRequest) {
		assert.Equal(t, "sonar", req.Model)
		assert.Equal(t, "month", req.SearchRecencyFilter)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "Be brief.", req.Messages[0].Content)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	})

	ans, err := NewClient("pk", WithBaseURL(base), WithModel("sonar")).Ask(context.Background(), Question{
		Prompt:      "news",
		System:      "Be brief.",
		Temperature: 0.2,
		Recency:     "month",
	})
	require.NoError(t, err)
	assert.Empty(t, ans.Text)
}

func TestAsk_QuestionModelWins(t *testing.T) {
	base := newServer(t, http.StatusOK, `{}`, func(req wireRequest) {
		assert.Equal(t, "sonar-reasoning", req.Model)
	})

	_, err := NewClient("pk", WithBaseURL(base), WithModel("")).Ask(context.Background(), Question{Prompt: "q", Model: "sonar-reasoning"})
	require.NoError(t, err)
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"throttled", http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, "perplexity: HTTP 429"},
		{"unauthorized", http.StatusUnauthorized, `{}`, "perplexity: HTTP 401"},
		{"malformed", http.StatusOK, `{invalid json`, "perplexity: decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newServer(t, tt.status, tt.body, nil)
			_, err := NewClient("pk", WithBaseURL(base)).Ask(context.Background(), Question{Prompt: "q"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAsk_EmptyPrompt(t *testing.T) {
	_, err := NewClient("pk").Ask(context.Background(), Question{Prompt: "  "})
	assert.EqualError(t, err, "perplexity: empty prompt")
}

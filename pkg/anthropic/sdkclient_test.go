package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessages answers POST /v1/messages with the given content blocks.
func fakeMessages(t *testing.T, blocks []map[string]any, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "ak", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":          "msg_lead_1",
			"type":        "message",
			"role":        "assistant",
			"content":     blocks,
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":                900,
				"output_tokens":               150,
				"cache_creation_input_tokens": 0,
				"cache_read_input_tokens":     700,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_Reply(t *testing.T) {
	srv := fakeMessages(t, []map[string]any{
		{"type": "text", "text": "Jane leads platform engineering. "},
		{"type": "text", "text": "She joined ExampleCo in 2021."},
	}, func(body map[string]any) {
		assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])
		assert.EqualValues(t, 512, body["max_tokens"])
		assert.NotContains(t, body, "system")
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	})

	reply, err := NewClient("ak", WithBaseURL(srv.URL)).Complete(context.Background(), Turn{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 512,
		User:      "Research Jane Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, &Reply{
		Text:       "Jane leads platform engineering. She joined ExampleCo in 2021.",
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: "end_turn",
		Usage:      Usage{InputTokens: 900, OutputTokens: 150, CacheReadTokens: 700},
	}, reply)
}

func TestComplete_CachedSystemAndTemperature(t *testing.T) {
	srv := fakeMessages(t, []map[string]any{{"type": "text", "text": "ok"}}, func(body map[string]any) {
		sys, ok := body["system"].([]any)
		require.True(t, ok)
		require.Len(t, sys, 1)
		block := sys[0].(map[string]any)
		assert.Equal(t, "You write outreach messages.", block["text"])
		assert.Contains(t, block, "cache_control")
		assert.InDelta(t, 0.7, body["temperature"], 1e-9)
	})

	_, err := NewClient("ak", WithBaseURL(srv.URL)).Complete(context.Background(), Turn{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   128,
		System:      "You write outreach messages.",
		CacheSystem: true,
		User:        "Draft for Jane",
		Temperature: 0.7,
	})
	require.NoError(t, err)
}

func TestComplete_UncachedSystem(t *testing.T) {
	srv := fakeMessages(t, []map[string]any{{"type": "text", "text": "ok"}}, func(body map[string]any) {
		block := body["system"].([]any)[0].(map[string]any)
		assert.NotContains(t, block, "cache_control")
	})

	_, err := NewClient("ak", WithBaseURL(srv.URL)).Complete(context.Background(), Turn{
		Model: "m", MaxTokens: 16, System: "plain", User: "u",
	})
	require.NoError(t, err)
}

func TestComplete_SkipsNonTextBlocks(t *testing.T) {
	srv := fakeMessages(t, []map[string]any{
		{"type": "text", "text": "Hello "},
		{"type": "tool_use", "id": "tu_1", "name": "lookup", "input": map[string]any{}},
		{"type": "text", "text": "world"},
	}, nil)

	reply, err := NewClient("ak", WithBaseURL(srv.URL)).Complete(context.Background(), Turn{Model: "m", MaxTokens: 16, User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", reply.Text)
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("ak", WithBaseURL(srv.URL)).Complete(context.Background(), Turn{Model: "m", MaxTokens: 64, User: "Hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_RejectsZeroMaxTokens(t *testing.T) {
	_, err := NewClient("ak").Complete(context.Background(), Turn{Model: "m", User: "u"})
	assert.EqualError(t, err, "anthropic: max tokens must be positive")
}

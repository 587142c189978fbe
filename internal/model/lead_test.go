package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadNormalize(t *testing.T) {
	t.Parallel()

	l := Lead{
		ProfileURL: "  https://example.com/in/jane \n",
		FirstName:  " Jane",
		LastName:   "Doe ",
		Title:      "\tCTO",
		Company:    "ExampleCo",
	}

	got := l.Normalize()
	assert.Equal(t, "https://example.com/in/jane", got.ProfileURL)
	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "Doe", got.LastName)
	assert.Equal(t, "CTO", got.Title)
	assert.Equal(t, "ExampleCo", got.Company)
}

func TestLeadFullName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead Lead
		want string
	}{
		{"both", Lead{FirstName: "Jane", LastName: "Doe"}, "Jane Doe"},
		{"first only", Lead{FirstName: "Jane"}, "Jane"},
		{"last only", Lead{LastName: "Doe"}, "Doe"},
		{"neither", Lead{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.lead.FullName())
		})
	}
}

func TestDraftMessageWordCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, DraftMessage{}.WordCount())
	assert.Equal(t, 4, DraftMessage{Body: "Hi there,\n how are\tyou"}.WordCount())
}

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 5, Cost: 0.01}
	u.Add(TokenUsage{InputTokens: 3, OutputTokens: 2, CacheReadTokens: 7, Cost: 0.02})

	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	assert.Equal(t, 7, u.CacheReadTokens)
	assert.Equal(t, 20, u.Total())
	assert.InDelta(t, 0.03, u.Cost, 1e-9)
}

func TestEnrichmentResultJSONFlattensLead(t *testing.T) {
	t.Parallel()

	res := EnrichmentResult{
		Lead:                Lead{ProfileURL: "https://example.com/in/jane", FirstName: "Jane"},
		PersonalizedMessage: "hello",
		IsNewLead:           true,
	}

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "https://example.com/in/jane", m["profile_url"])
	assert.Equal(t, "Jane", m["first_name"])
	assert.Equal(t, true, m["is_new_lead"])
	assert.Contains(t, m, "enriched_data")
}

func TestNewLeadRecord(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, loc)
	res := &EnrichmentResult{
		Lead:                Lead{ProfileURL: "https://example.com/in/jane"},
		EnrichedData:        EnrichedData{RawAIOutput: "draft"},
		PersonalizedMessage: "draft",
	}

	rec := NewLeadRecord("id-1", res, now)
	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, res.Lead, rec.Lead)
	assert.Equal(t, "draft", rec.EnrichedData.RawAIOutput)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.True(t, rec.CreatedAt.Equal(now))
}

package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func researchTask() Task {
	return Task{
		Name:           "research",
		Role:           "a B2B research analyst",
		Goal:           "find relevant facts",
		Backstory:      "You dig through public sources.",
		Description:    "Research {first_name} {last_name} ({profile_url}) at {company}. Profile: {profile_content}",
		ExpectedOutput: "3-4 bullet points about {first_name}",
		MaxTokens:      800,
		Temperature:    0.2,
	}
}

func TestTaskPlaceholders(t *testing.T) {
	t.Parallel()

	got := researchTask().Placeholders()
	assert.Equal(t, []string{"first_name", "last_name", "profile_url", "company", "profile_content"}, got)
}

func TestTaskPlaceholdersIgnoresNonIdentifiers(t *testing.T) {
	t.Parallel()

	task := Task{Description: `Return JSON like {"a": 1} or {Name} or { spaced } but bind {ok_1}`}
	assert.Equal(t, []string{"ok_1"}, task.Placeholders())
}

func TestTaskSystemPrompt(t *testing.T) {
	t.Parallel()

	sys := researchTask().SystemPrompt()
	assert.Contains(t, sys, "You are a B2B research analyst.")
	assert.Contains(t, sys, "You dig through public sources.")
	assert.Contains(t, sys, "Your goal: find relevant facts")
	assert.Empty(t, Task{}.SystemPrompt())
}

func TestBind(t *testing.T) {
	t.Parallel()

	p, err := Bind(researchTask(), Vars{
		"first_name":      "Jane",
		"last_name":       "Doe",
		"profile_url":     "https://example.com/in/jane",
		"company":         "ExampleCo",
		"profile_content": "Not available.",
		"unused":          "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "research", p.Task)
	assert.Equal(t, 800, p.MaxTokens)
	assert.InDelta(t, 0.2, p.Temperature, 1e-9)
	assert.Equal(t,
		"Research Jane Doe (https://example.com/in/jane) at ExampleCo. Profile: Not available.\n\nExpected output: 3-4 bullet points about Jane",
		p.User)
	assert.NotContains(t, p.User, "{")
}

func TestBindEmptyValueIsBound(t *testing.T) {
	t.Parallel()

	task := Task{Name: "writing", Description: "Hi {first_name}"}
	p, err := Bind(task, Vars{"first_name": ""})
	require.NoError(t, err)
	assert.Equal(t, "Hi ", p.User)
}

func TestBindMissingPlaceholders(t *testing.T) {
	t.Parallel()

	_, err := Bind(researchTask(), Vars{"first_name": "Jane"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContextBinding))
	assert.False(t, errors.Is(err, ErrTimeout))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "research", ce.Task)
	assert.Contains(t, ce.Error(), "company, last_name, profile_content, profile_url")
}

func TestErrorIsAndKindOf(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindTimeout, Task: "analysis", Err: errors.New("deadline")}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUnavailable)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTimeout, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "capability timeout (task analysis): deadline", err.Error())
}

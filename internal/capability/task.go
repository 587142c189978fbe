// Package capability wraps external reasoning providers behind a single
// Invoke call: bind a task's placeholders, call the provider once, and
// classify the outcome.
package capability

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lead-enricher/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Task is a reasoning assignment. Role, Goal and Backstory form the system
// prompt; Description and ExpectedOutput form the user prompt and may
// reference {placeholder} tokens.
type Task struct {
	Name           string  `yaml:"name"`
	Role           string  `yaml:"role"`
	Goal           string  `yaml:"goal"`
	Backstory      string  `yaml:"backstory"`
	Description    string  `yaml:"description"`
	ExpectedOutput string  `yaml:"expected_output"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

// Placeholders returns the distinct placeholder names referenced by the
// task, in order of first appearance.
func (t Task) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, text := range []string{t.Description, t.ExpectedOutput} {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// SystemPrompt renders the persona part of the task.
func (t Task) SystemPrompt() string {
	var parts []string
	if t.Role != "" {
		parts = append(parts, "You are "+t.Role+".")
	}
	if t.Backstory != "" {
		parts = append(parts, t.Backstory)
	}
	if t.Goal != "" {
		parts = append(parts, "Your goal: "+t.Goal)
	}
	return strings.Join(parts, "\n\n")
}

// Vars holds placeholder values for one invocation.
type Vars map[string]string

// Prompt is a fully bound request handed to a provider.
type Prompt struct {
	Task        string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Bind resolves every placeholder in t from vars. A missing key fails with
// a context_binding error before any provider is contacted.
func Bind(t Task, vars Vars) (Prompt, error) {
	var missing []string
	for _, name := range t.Placeholders() {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Prompt{}, &Error{
			Kind: KindContextBinding,
			Task: t.Name,
			Err:  fmt.Errorf("missing placeholders: %s", strings.Join(missing, ", ")),
		}
	}

	fill := func(s string) string {
		return placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
			return vars[tok[1:len(tok)-1]]
		})
	}

	user := fill(t.Description)
	if t.ExpectedOutput != "" {
		user += "\n\nExpected output: " + fill(t.ExpectedOutput)
	}

	return Prompt{
		Task:        t.Name,
		System:      t.SystemPrompt(),
		User:        user,
		MaxTokens:   t.MaxTokens,
		Temperature: t.Temperature,
	}, nil
}

// Generation is the text a provider produced plus accounting.
type Generation struct {
	Text     string
	Provider string
	Model    string
	Usage    model.TokenUsage
}

// Provider is one reasoning backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, p Prompt) (*Generation, error)
	Close() error
}

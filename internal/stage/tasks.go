// Package stage defines the three enrichment stages: the task each one
// sends to the reasoning capability, the typed context it binds, and the
// parser that validates its output before the next stage may run.
package stage

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-enricher/internal/capability"
)

// Name identifies a stage.
type Name string

const (
	Research Name = "research"
	Analysis Name = "analysis"
	Writing  Name = "writing"
)

// Names lists the stages in execution order.
var Names = []Name{Research, Analysis, Writing}

// Tasks holds the capability task for each stage.
type Tasks struct {
	Research capability.Task `yaml:"research"`
	Analysis capability.Task `yaml:"analysis"`
	Writing  capability.Task `yaml:"writing"`
}

// For returns the task for stage n.
func (t Tasks) For(n Name) capability.Task {
	switch n {
	case Research:
		return t.Research
	case Analysis:
		return t.Analysis
	default:
		return t.Writing
	}
}

// DefaultTasks returns the built-in task definitions.
func DefaultTasks() Tasks {
	return Tasks{
		Research: capability.Task{
			Name:      string(Research),
			Role:      "a Lead Research Specialist",
			Goal:      "Uncover recent, specific and verifiable facts about a prospect and their company.",
			Backstory: "You are an expert at reading professional profiles and public news to surface details a salesperson can reference in a first message.",
			Description: `Research the prospect below using the profile content and recent news provided.

Name: {first_name} {last_name}
Title: {title}
Company: {company}
Profile URL: {profile_url}

Profile content:
{profile_content}

Recent news:
{recent_news}

Focus on their current role, recent achievements or announcements, and what their company is working on.`,
			ExpectedOutput: "A list of 3-4 bullet points, one finding per line, each starting with \"- \". No introduction or closing text.",
			MaxTokens:      800,
			Temperature:    0.2,
		},
		Analysis: capability.Task{
			Name:      string(Analysis),
			Role:      "a Sales Strategy Analyst",
			Goal:      "Turn raw research into a clear angle for outreach.",
			Backstory: "You have years of experience finding the one relevant hook that earns a reply from a busy executive.",
			Description: `Analyze the research findings below and identify why this prospect might care about a conversation now.

Research findings:
{research_findings}`,
			ExpectedOutput: "One summary paragraph, followed by 2-3 talking points on separate lines, each starting with \"- \".",
			MaxTokens:      700,
			Temperature:    0.3,
		},
		Writing: capability.Task{
			Name:      string(Writing),
			Role:      "an Outreach Copywriter",
			Goal:      "Write a short, personal first email that gets a reply.",
			Backstory: "You write like a thoughtful peer, never like a template. You open with something specific to the reader.",
			Description: `Write a cold outreach email to {first_name} using the analysis below.

Summary:
{analysis_summary}

Talking points:
{talking_points}

Open with a hook drawn from the talking points, keep it under 150 words, and close with a low-friction call to action.`,
			ExpectedOutput: "Only the email body. No subject line, no greeting line, no signature.",
			MaxTokens:      500,
			Temperature:    0.7,
		},
	}
}

// LoadTasks reads task overrides from a YAML file and merges them over the
// defaults. Fields left empty in the file keep their default. An override
// that references a placeholder its stage cannot bind is rejected.
func LoadTasks(path string) (Tasks, error) {
	tasks := DefaultTasks()
	if path == "" {
		return tasks, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tasks{}, eris.Wrapf(err, "stage: read tasks %s", path)
	}

	var override struct {
		Research taskOverride `yaml:"research"`
		Analysis taskOverride `yaml:"analysis"`
		Writing  taskOverride `yaml:"writing"`
	}
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Tasks{}, eris.Wrapf(err, "stage: parse tasks %s", path)
	}

	for _, o := range []struct {
		n    Name
		dst  *capability.Task
		over taskOverride
	}{
		{Research, &tasks.Research, override.Research},
		{Analysis, &tasks.Analysis, override.Analysis},
		{Writing, &tasks.Writing, override.Writing},
	} {
		if o.over.Temperature != nil && (*o.over.Temperature < 0 || *o.over.Temperature > 2) {
			return Tasks{}, eris.Errorf("stage: %s temperature %v outside [0, 2]", o.n, *o.over.Temperature)
		}
		*o.dst = o.over.apply(*o.dst)
	}

	if err := tasks.Validate(); err != nil {
		return Tasks{}, err
	}
	return tasks, nil
}

// Validate checks every task only references placeholders its stage input
// provides.
func (t Tasks) Validate() error {
	for _, n := range Names {
		allowed := Placeholders(n)
		for _, p := range t.For(n).Placeholders() {
			if !slices.Contains(allowed, p) {
				return eris.Errorf("stage: %s task references unknown placeholder {%s}", n, p)
			}
		}
	}
	return nil
}

// taskOverride is one stage's entry in a task override file. Temperature is
// a pointer so that an explicit 0 replaces the default.
type taskOverride struct {
	Role           string   `yaml:"role"`
	Goal           string   `yaml:"goal"`
	Backstory      string   `yaml:"backstory"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
}

func (o taskOverride) apply(base capability.Task) capability.Task {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.Role, o.Role)
	set(&base.Goal, o.Goal)
	set(&base.Backstory, o.Backstory)
	set(&base.Description, o.Description)
	set(&base.ExpectedOutput, o.ExpectedOutput)
	if o.MaxTokens > 0 {
		base.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		base.Temperature = *o.Temperature
	}
	return base
}

package stage

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-enricher/internal/capability"
	"github.com/sells-group/lead-enricher/internal/model"
)

// NotAvailable is bound for optional context the gatherer could not supply.
const NotAvailable = "Not available."

// ResearchInput is the context bound into the research task.
type ResearchInput struct {
	Lead           model.Lead
	ProfileContent string
	RecentNews     string
}

// Vars renders the research placeholders. Missing title, company and
// gathered content bind as NotAvailable.
func (in ResearchInput) Vars() capability.Vars {
	return capability.Vars{
		"profile_url":     in.Lead.ProfileURL,
		"first_name":      in.Lead.FirstName,
		"last_name":       in.Lead.LastName,
		"title":           orNA(in.Lead.Title),
		"company":         orNA(in.Lead.Company),
		"profile_content": orNA(in.ProfileContent),
		"recent_news":     orNA(in.RecentNews),
	}
}

// AnalysisInput is the context bound into the analysis task. Findings come
// from ParseFindings.
type AnalysisInput struct {
	Findings model.ResearchFindings
}

// Vars renders the analysis placeholders.
func (in AnalysisInput) Vars() capability.Vars {
	return capability.Vars{"research_findings": bullets(in.Findings.Items)}
}

// WritingInput is the context bound into the writing task.
type WritingInput struct {
	Insights  model.AnalysisInsights
	FirstName string
}

// Vars renders the writing placeholders. An empty first name binds as
// "there" so the draft still reads naturally.
func (in WritingInput) Vars() capability.Vars {
	name := SalutationName(in.FirstName)
	if name == "" {
		name = "there"
	}
	return capability.Vars{
		"analysis_summary": in.Insights.Summary,
		"talking_points":   bullets(in.Insights.TalkingPoints),
		"first_name":       name,
	}
}

// Placeholders returns the closed set of placeholder names stage n binds.
func Placeholders(n Name) []string {
	var vars capability.Vars
	switch n {
	case Research:
		vars = ResearchInput{}.Vars()
	case Analysis:
		vars = AnalysisInput{}.Vars()
	default:
		vars = WritingInput{}.Vars()
	}
	out := make([]string, 0, len(vars))
	for k := range vars {
		out = append(out, k)
	}
	return out
}

// SalutationName fixes names entered in all lower or all upper case.
// Mixed-case input such as "McKenzie" is kept as given.
func SalutationName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	hasLower := strings.IndexFunc(s, unicode.IsLower) >= 0
	hasUpper := strings.IndexFunc(s, unicode.IsUpper) >= 0
	if hasLower && hasUpper {
		return s
	}
	return cases.Title(language.English).String(s)
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

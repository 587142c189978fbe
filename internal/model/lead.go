package model

import (
	"strings"
	"time"
)

// Lead identifies a prospect. ProfileURL is the unique key.
type Lead struct {
	ProfileURL string `json:"profile_url"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Title      string `json:"title,omitempty"`
	Company    string `json:"company,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (l Lead) Normalize() Lead {
	return Lead{
		ProfileURL: strings.TrimSpace(l.ProfileURL),
		FirstName:  strings.TrimSpace(l.FirstName),
		LastName:   strings.TrimSpace(l.LastName),
		Title:      strings.TrimSpace(l.Title),
		Company:    strings.TrimSpace(l.Company),
	}
}

// FullName joins first and last name, skipping empty parts.
func (l Lead) FullName() string {
	return strings.TrimSpace(strings.Join([]string{l.FirstName, l.LastName}, " "))
}

// ResearchFindings is the output of the research stage.
type ResearchFindings struct {
	Items []string `json:"items"`
}

// AnalysisInsights is the output of the analysis stage.
type AnalysisInsights struct {
	Summary       string   `json:"summary"`
	TalkingPoints []string `json:"talking_points"`
}

// DraftMessage is the output of the writing stage and the pipeline's
// terminal artifact.
type DraftMessage struct {
	Body string `json:"body"`
}

// WordCount returns the number of whitespace-separated words in the body.
func (d DraftMessage) WordCount() int {
	return len(strings.Fields(d.Body))
}

// EnrichedData is the structured enrichment payload persisted with a lead.
type EnrichedData struct {
	RawAIOutput       string        `json:"raw_ai_output"`
	StructuredSummary string        `json:"structured_summary"`
	ResearchFindings  []string      `json:"research_findings"`
	TalkingPoints     []string      `json:"talking_points"`
	Stages            []StageResult `json:"stages"`
	TotalTokens       int           `json:"total_tokens"`
	TotalCost         float64       `json:"total_cost_usd"`
	IndexEnabled      bool          `json:"index_enabled"`
}

// EnrichmentResult is the public output of a processed lead.
type EnrichmentResult struct {
	Lead
	EnrichedData        EnrichedData `json:"enriched_data"`
	PersonalizedMessage string       `json:"personalized_message"`
	IsNewLead           bool         `json:"is_new_lead"`
}

// LeadRecord is the persisted form of an enriched lead. One record exists per
// profile URL and it is never updated.
type LeadRecord struct {
	ID                  string       `json:"id"`
	Lead                Lead         `json:"lead"`
	EnrichedData        EnrichedData `json:"enriched_data"`
	PersonalizedMessage string       `json:"personalized_message"`
	CreatedAt           time.Time    `json:"created_at"`
}

// NewLeadRecord builds the record persisted for a completed enrichment.
func NewLeadRecord(id string, result *EnrichmentResult, now time.Time) *LeadRecord {
	return &LeadRecord{
		ID:                  id,
		Lead:                result.Lead,
		EnrichedData:        result.EnrichedData,
		PersonalizedMessage: result.PersonalizedMessage,
		CreatedAt:           now.UTC(),
	}
}

// WebContext is public web material gathered before the research stage.
type WebContext struct {
	ProfileContent string   `json:"profile_content,omitempty"`
	RecentNews     string   `json:"recent_news,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	Cost           float64  `json:"cost"`
}

package intake

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/pkg/notion"
)

// Queue statuses.
const (
	StatusQueued    = "Queued"
	StatusComplete  = "Complete"
	StatusDuplicate = "Duplicate"
	StatusFailed    = "Failed"
)

// QueuedLead is a lead read from a Notion queue page.
type QueuedLead struct {
	PageID string
	Lead   model.Lead
}

// NotionQueue reads queued leads from a Notion database and records their
// outcome.
type NotionQueue struct {
	client notion.Client
	dbID   string
}

// NewNotionQueue creates a NotionQueue over dbID.
func NewNotionQueue(client notion.Client, dbID string) *NotionQueue {
	return &NotionQueue{client: client, dbID: dbID}
}

// Pending returns up to limit pages with Status Queued. Pages without a
// profile URL are skipped.
func (q *NotionQueue) Pending(ctx context.Context, limit int) ([]QueuedLead, error) {
	pages, err := notion.QueryByStatus(ctx, q.client, q.dbID, StatusQueued, limit)
	if err != nil {
		return nil, eris.Wrap(err, "intake: notion queue")
	}

	seen := make(map[string]bool)
	var out []QueuedLead
	for _, page := range pages {
		lead := model.Lead{
			ProfileURL: notion.PlainText(page, "Profile URL"),
			FirstName:  notion.PlainText(page, "First Name"),
			LastName:   notion.PlainText(page, "Last Name"),
			Title:      notion.PlainText(page, "Title"),
			Company:    notion.PlainText(page, "Company"),
		}
		if lead.FirstName == "" && lead.LastName == "" {
			lead.FirstName, lead.LastName = splitName(notion.PlainText(page, "Name"))
		}
		lead = lead.Normalize()
		if lead.ProfileURL == "" || seen[lead.ProfileURL] {
			continue
		}
		seen[lead.ProfileURL] = true
		out = append(out, QueuedLead{PageID: string(page.ID), Lead: lead})
	}
	return out, nil
}

// Complete marks a page processed.
func (q *NotionQueue) Complete(ctx context.Context, pageID string) error {
	return notion.SetStatus(ctx, q.client, pageID, StatusComplete, "")
}

// Duplicate marks a page whose lead was already enriched.
func (q *NotionQueue) Duplicate(ctx context.Context, pageID string) error {
	return notion.SetStatus(ctx, q.client, pageID, StatusDuplicate, "")
}

// Fail marks a page failed with the cause as its note.
func (q *NotionQueue) Fail(ctx context.Context, pageID string, cause error) error {
	note := ""
	if cause != nil {
		note = cause.Error()
	}
	return notion.SetStatus(ctx, q.client, pageID, StatusFailed, note)
}

// splitName splits "Jane van Doe" into "Jane" and "van Doe".
func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// Package export pushes newly enriched leads to CRM systems after they are
// persisted. Exporters never affect whether a lead counts as processed.
package export

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/pkg/notion"
)

// StatusEnriched marks an exported lead page.
const StatusEnriched = "Enriched"

// NotionExporter creates one page per new lead in a Notion database.
type NotionExporter struct {
	client notion.Client
	dbID   string
}

// NewNotionExporter creates a NotionExporter writing to dbID.
func NewNotionExporter(client notion.Client, dbID string) *NotionExporter {
	return &NotionExporter{client: client, dbID: dbID}
}

func (e *NotionExporter) Name() string { return "notion" }

// Export creates the lead page.
func (e *NotionExporter) Export(ctx context.Context, rec *model.LeadRecord) error {
	if rec == nil {
		return eris.New("export: nil record")
	}

	_, err := e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(e.dbID),
		},
		Properties: leadPageProperties(rec),
	})
	if err != nil {
		return eris.Wrapf(err, "export: notion page for %s", rec.Lead.ProfileURL)
	}
	return nil
}

func leadPageProperties(rec *model.LeadRecord) notionapi.Properties {
	name := rec.Lead.FullName()
	if name == "" {
		name = rec.Lead.ProfileURL
	}
	props := notionapi.Properties{
		"Name":        notion.Title(name),
		"Profile URL": notion.URL(rec.Lead.ProfileURL),
		"Message":     notion.RichText(rec.PersonalizedMessage),
		"Status":      notion.Status(StatusEnriched),
	}
	if rec.Lead.Company != "" {
		props["Company"] = notion.RichText(rec.Lead.Company)
	}
	if rec.Lead.Title != "" {
		props["Title"] = notion.RichText(rec.Lead.Title)
	}
	if rec.EnrichedData.StructuredSummary != "" {
		props["Summary"] = notion.RichText(rec.EnrichedData.StructuredSummary)
	}
	return props
}

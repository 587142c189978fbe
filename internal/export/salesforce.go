package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/pkg/salesforce"
)

const (
	// LeadSource tags every Salesforce Lead this service creates.
	LeadSource = "Lead Enrichment"
	unknown    = "Unknown"
	// maxDescription is the Lead.Description field limit.
	maxDescription = 32000
)

// SalesforceExporter creates a Salesforce Lead per new record. A Lead that
// already carries the profile URL as its Website gets the new message
// instead of a duplicate.
type SalesforceExporter struct {
	client salesforce.Client
}

// NewSalesforceExporter creates a SalesforceExporter.
func NewSalesforceExporter(client salesforce.Client) *SalesforceExporter {
	return &SalesforceExporter{client: client}
}

func (e *SalesforceExporter) Name() string { return "salesforce" }

// Export creates or updates the Lead.
func (e *SalesforceExporter) Export(ctx context.Context, rec *model.LeadRecord) error {
	if rec == nil {
		return eris.New("export: nil record")
	}

	existing, err := salesforce.FindLeadByWebsite(ctx, e.client, rec.Lead.ProfileURL)
	if err != nil {
		return eris.Wrap(err, "export: salesforce lookup")
	}
	if existing != nil {
		zap.L().Debug("export: updating existing salesforce lead",
			zap.String("profile_url", rec.Lead.ProfileURL),
			zap.String("sf_id", existing.ID),
		)
		if err := salesforce.UpdateLead(ctx, e.client, existing.ID, map[string]any{
			"Description": description(rec),
		}); err != nil {
			return eris.Wrap(err, "export: salesforce update")
		}
		return nil
	}

	if _, err := salesforce.CreateLead(ctx, e.client, leadFields(rec)); err != nil {
		return eris.Wrap(err, "export: salesforce create")
	}
	return nil
}

func leadFields(rec *model.LeadRecord) map[string]any {
	fields := map[string]any{
		"LastName":    orUnknown(rec.Lead.LastName),
		"Company":     orUnknown(rec.Lead.Company),
		"Website":     rec.Lead.ProfileURL,
		"Description": description(rec),
		"LeadSource":  LeadSource,
	}
	if rec.Lead.FirstName != "" {
		fields["FirstName"] = rec.Lead.FirstName
	}
	if rec.Lead.Title != "" {
		fields["Title"] = rec.Lead.Title
	}
	return fields
}

func description(rec *model.LeadRecord) string {
	d := []rune(rec.PersonalizedMessage)
	if len(d) > maxDescription {
		d = d[:maxDescription]
	}
	return string(d)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

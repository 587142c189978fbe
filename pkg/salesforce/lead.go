package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead is the subset of the Salesforce Lead object this service reads back.
type Lead struct {
	ID         string `json:"Id" salesforce:"Id"`
	FirstName  string `json:"FirstName" salesforce:"FirstName"`
	LastName   string `json:"LastName" salesforce:"LastName"`
	Company    string `json:"Company" salesforce:"Company"`
	Title      string `json:"Title" salesforce:"Title"`
	Website    string `json:"Website" salesforce:"Website"`
	LeadSource string `json:"LeadSource" salesforce:"LeadSource"`
}

var leadFields = []string{"Id", "FirstName", "LastName", "Company", "Title", "Website", "LeadSource"}

// FindLeadByWebsite returns the Lead whose Website equals website, or nil.
func FindLeadByWebsite(ctx context.Context, c Client, website string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Website = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		escapeSoql(website),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by website %s", website))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// CreateLead inserts a Lead and returns its Salesforce ID. LastName and
// Company are required by Salesforce.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	for _, req := range []string{"LastName", "Company"} {
		if v, _ := fields[req].(string); strings.TrimSpace(v) == "" {
			return "", eris.Errorf("sf: lead %s is required", req)
		}
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead sets fields on an existing Lead.
func UpdateLead(ctx context.Context, c Client, id string, fields map[string]any) error {
	if id == "" {
		return eris.New("sf: lead id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Lead", id, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", id))
	}
	return nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

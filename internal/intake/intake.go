// Package intake reads batches of leads from spreadsheet exports and from a
// Notion queue database.
package intake

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

type column int

const (
	colProfileURL column = iota
	colFirstName
	colLastName
	colTitle
	colCompany
)

// headerAliases maps a normalized header to its column. Normalization
// lowercases and drops spaces, underscores and dashes.
var headerAliases = map[string]column{
	"profileurl":         colProfileURL,
	"linkedinurl":        colProfileURL,
	"linkedinprofileurl": colProfileURL,
	"firstname":          colFirstName,
	"lastname":           colLastName,
	"title":              colTitle,
	"jobtitle":           colTitle,
	"headline":           colTitle,
	"company":            colCompany,
	"companyname":        colCompany,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// ReadFile reads leads from a .csv, .tsv or .xlsx file, picking the parser
// by extension.
func ReadFile(path string) ([]model.Lead, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return ReadCSV(path)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", filepath.Ext(path))
	}
}

// parseRows turns a header row plus data rows into leads. Rows without a
// profile URL are skipped and repeated URLs keep their first occurrence.
func parseRows(rows [][]string) ([]model.Lead, error) {
	if len(rows) == 0 {
		return nil, eris.New("intake: missing header row")
	}

	idx := make(map[column]int)
	for i, h := range rows[0] {
		c, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	if _, ok := idx[colProfileURL]; !ok {
		return nil, eris.New("intake: no profile url column")
	}

	get := func(row []string, c column) string {
		i, ok := idx[c]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	seen := make(map[string]bool)
	var leads []model.Lead
	for _, row := range rows[1:] {
		lead := model.Lead{
			ProfileURL: get(row, colProfileURL),
			FirstName:  get(row, colFirstName),
			LastName:   get(row, colLastName),
			Title:      get(row, colTitle),
			Company:    get(row, colCompany),
		}.Normalize()
		if lead.ProfileURL == "" || seen[lead.ProfileURL] {
			continue
		}
		seen[lead.ProfileURL] = true
		leads = append(leads, lead)
	}
	return leads, nil
}

package notion

import (
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilders(t *testing.T) {
	title := Title("Jane Doe")
	assert.Equal(t, notionapi.PropertyTypeTitle, title.Type)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Jane Doe", title.Title[0].Text.Content)

	assert.Equal(t, "https://example.com/in/jane", URL("https://example.com/in/jane").URL)
	assert.Equal(t, "Enriched", Status("Enriched").Status.Name)

	long := RichText(strings.Repeat("é", MaxTextLen+50))
	assert.Equal(t, MaxTextLen, len([]rune(long.RichText[0].Text.Content)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "éé", Truncate("ééé", 2))
}

func TestPlainText(t *testing.T) {
	page := notionapi.Page{
		Properties: notionapi.Properties{
			"Name": &notionapi.TitleProperty{Title: []notionapi.RichText{
				{PlainText: "Jane "}, {PlainText: "Doe "},
			}},
			"Company":     &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: " ExampleCo"}}},
			"Profile URL": &notionapi.URLProperty{URL: "https://example.com/in/jane"},
			"Email":       &notionapi.EmailProperty{Email: "jane@example.com"},
			"Status":      &notionapi.StatusProperty{Status: notionapi.Status{Name: "Queued"}},
			"Count":       &notionapi.NumberProperty{Number: 3},
		},
	}

	assert.Equal(t, "Jane Doe", PlainText(page, "Name"))
	assert.Equal(t, "ExampleCo", PlainText(page, "Company"))
	assert.Equal(t, "https://example.com/in/jane", PlainText(page, "Profile URL"))
	assert.Equal(t, "jane@example.com", PlainText(page, "Email"))
	assert.Equal(t, "Queued", PlainText(page, "Status"))
	assert.Empty(t, PlainText(page, "Count"))
	assert.Empty(t, PlainText(page, "Missing"))
}

package notion

import (
	"strings"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

// MaxTextLen is Notion's limit for a single rich-text content block.
const MaxTextLen = 2000

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: textBlocks(s),
	}
}

// RichText builds a rich-text property truncated to MaxTextLen.
func RichText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: textBlocks(s),
	}
}

// URL builds a url property.
func URL(s string) notionapi.URLProperty {
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: s}
}

// Status builds a status property.
func Status(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{
		Type:   notionapi.PropertyTypeStatus,
		Status: notionapi.Status{Name: name},
	}
}

func textBlocks(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: Truncate(s, MaxTextLen)}},
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// PlainText reads the text of a title, rich-text, url, email or status
// property. Unknown or missing properties read as "".
func PlainText(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var out string
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		out = joinRichText(p.Title)
	case *notionapi.RichTextProperty:
		out = joinRichText(p.RichText)
	case *notionapi.URLProperty:
		out = p.URL
	case *notionapi.EmailProperty:
		out = p.Email
	case *notionapi.StatusProperty:
		out = p.Status.Name
	}
	return strings.TrimSpace(out)
}

func joinRichText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/firecrawl"
	"github.com/sells-group/lead-enricher/pkg/jina"
)

// minContent is the shortest page body worth handing to the research stage.
const minContent = 100

// readable rejects provider output that is empty, an upstream error or an
// interstitial. Challenge markers only count on short pages; long profiles
// may mention them in passing.
func readable(source string, status int, content string) error {
	if status != 0 && status != 200 {
		return eris.Errorf("%s: upstream status %d", source, status)
	}
	content = strings.TrimSpace(content)
	if len(content) < minContent {
		return eris.Errorf("%s: page too short (%d chars)", source, len(content))
	}
	if len(content) < 1000 {
		if kind := classifyBody(strings.ToLower(content)); kind != BlockNone {
			return eris.Errorf("%s: blocked (%s)", source, kind)
		}
	}
	return nil
}

// JinaAdapter renders pages through the Jina reader.
type JinaAdapter struct {
	client  jina.Client
	timeout time.Duration
}

// NewJinaAdapter wraps a Jina client.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{client: client, timeout: 20 * time.Second}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports is true for any URL; the reader renders in a real browser.
func (j *JinaAdapter) Supports(string) bool { return true }

func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	page, err := j.client.Read(ctx, targetURL, jina.WithReadTimeout(j.timeout))
	if err != nil {
		return nil, err
	}
	if err := readable("jina", page.Code, page.Content); err != nil {
		return nil, err
	}
	return &Result{
		Page:   Page{URL: firstNonEmpty(page.URL, targetURL), Title: page.Title, Markdown: page.Content, StatusCode: page.Code},
		Source: "jina",
		Tokens: page.Tokens,
	}, nil
}

// FirecrawlAdapter scrapes through Firecrawl's hosted browser.
type FirecrawlAdapter struct {
	client firecrawl.Client
	// waitMs lets client-rendered profiles settle before extraction.
	waitMs int
}

// NewFirecrawlAdapter wraps a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client, waitMs: 1000}
}

func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports is true for any URL.
func (f *FirecrawlAdapter) Supports(string) bool { return true }

func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	doc, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		OnlyMainContent: true,
		WaitFor:         f.waitMs,
	})
	if err != nil {
		return nil, err
	}
	if err := readable("firecrawl", doc.StatusCode, doc.Markdown); err != nil {
		return nil, err
	}
	return &Result{
		Page:   Page{URL: firstNonEmpty(doc.SourceURL, targetURL), Title: doc.Title, Markdown: doc.Markdown, StatusCode: doc.StatusCode},
		Source: "firecrawl",
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

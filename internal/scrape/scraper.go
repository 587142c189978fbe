package scrape

import "context"

// Page is the readable content of one URL.
type Page struct {
	URL        string
	Title      string
	Markdown   string
	StatusCode int
}

// Result is a page plus which provider produced it. Tokens is the billed
// reader usage when the provider meters by token.
type Result struct {
	Page   Page
	Source string
	Tokens int
}

// Scraper is one way of turning a URL into a Page.
type Scraper interface {
	Name() string
	// Supports reports whether the scraper should be attempted for url.
	Supports(url string) bool
	Scrape(ctx context.Context, url string) (*Result, error)
}

// Package firecrawl scrapes single pages through Firecrawl's hosted
// browser. It is the fallback for profile pages the reader cannot render.
package firecrawl

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/httpapi"
)

const defaultBaseURL = "https://api.firecrawl.dev/v1"

// ErrNotScraped is returned when Firecrawl answers 200 with success=false.
var ErrNotScraped = eris.New("firecrawl: page not scraped")

// Client scrapes one URL at a time.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*Document, error)
}

// ScrapeRequest is the body for POST /scrape.
type ScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
	// WaitFor, in milliseconds, lets client-rendered pages settle.
	WaitFor int `json:"waitFor,omitempty"`
	// Timeout is the server-side budget in milliseconds.
	Timeout int `json:"timeout,omitempty"`
}

// Document is a scraped page.
type Document struct {
	Markdown   string
	Title      string
	SourceURL  string
	StatusCode int
}

type scrapeEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title      string `json:"title"`
			SourceURL  string `json:"sourceURL"`
			StatusCode int    `json:"statusCode"`
		} `json:"metadata"`
	} `json:"data"`
}

// Option configures NewClient.
type Option = httpapi.Option

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option { return httpapi.WithBaseURL(u) }

// WithHTTPClient swaps the transport.
func WithHTTPClient(d httpapi.Doer) Option { return httpapi.WithDoer(d) }

type client struct {
	api *httpapi.Client
}

// NewClient builds a Firecrawl client. Scrapes are billed per call and are
// never retried here.
func NewClient(apiKey string, opts ...Option) Client {
	return &client{api: httpapi.New("firecrawl", apiKey, defaultBaseURL, 60*time.Second, opts...)}
}

func (c *client) Scrape(ctx context.Context, req ScrapeRequest) (*Document, error) {
	if req.URL == "" {
		return nil, eris.New("firecrawl: url is required")
	}
	if len(req.Formats) == 0 {
		req.Formats = []string{"markdown"}
	}

	resp, err := c.api.Send(ctx, httpapi.Request{Method: http.MethodPost, Path: "/scrape", Body: req})
	if err != nil {
		return nil, err
	}
	var env scrapeEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, ErrNotScraped
	}
	return &Document{
		Markdown:   env.Data.Markdown,
		Title:      env.Data.Metadata.Title,
		SourceURL:  env.Data.Metadata.SourceURL,
		StatusCode: env.Data.Metadata.StatusCode,
	}, nil
}

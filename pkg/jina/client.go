// Package jina reads profile pages through the Jina Reader (r.jina.ai) and
// searches for news about a lead through Jina Search (s.jina.ai).
package jina

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sells-group/lead-enricher/pkg/httpapi"
)

// Client is the subset of Jina used by the research stage.
type Client interface {
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*Page, error)
	Search(ctx context.Context, query string, opts ...SearchOption) (*Results, error)
}

// Page is a page rendered to markdown by the reader.
type Page struct {
	// Code is the upstream status Jina saw, 0 when not reported.
	Code    int
	Title   string
	URL     string
	Content string
	Tokens  int
}

// Hit is one search result.
type Hit struct {
	Title       string
	URL         string
	Description string
	Date        string
	Tokens      int
}

// Results holds the hits for one query. A query with no matches yields an
// empty Results, not an error.
type Results struct {
	Hits []Hit
}

// Tokens is the billed token count for the whole query.
func (r *Results) Tokens() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, h := range r.Hits {
		n += h.Tokens
	}
	return n
}

type usage struct {
	Tokens int `json:"tokens"`
}

type readEnvelope struct {
	Code int `json:"code"`
	Data struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Usage   usage  `json:"usage"`
	} `json:"data"`
}

type searchEnvelope struct {
	Data []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Date        string `json:"date"`
		Usage       usage  `json:"usage"`
	} `json:"data"`
}

// ReadOption tunes a single Read.
type ReadOption func(map[string]string)

// WithNoCache bypasses the reader's page cache.
func WithNoCache() ReadOption {
	return func(h map[string]string) { h["X-No-Cache"] = "true" }
}

// WithReadTimeout bounds how long the reader waits on the target site.
func WithReadTimeout(d time.Duration) ReadOption {
	return func(h map[string]string) {
		if s := int(d.Seconds()); s > 0 {
			h["X-Timeout"] = strconv.Itoa(s)
		}
	}
}

// SearchOption tunes a single Search.
type SearchOption func(h map[string]string, q url.Values)

// WithoutContent returns titles and descriptions only, skipping the fetch of
// every result page.
func WithoutContent() SearchOption {
	return func(h map[string]string, _ url.Values) { h["X-Respond-With"] = "no-content" }
}

// WithSiteFilter limits hits to one domain.
func WithSiteFilter(domain string) SearchOption {
	return func(_ map[string]string, q url.Values) { q.Set("site", domain) }
}

type settings struct {
	readURL   string
	searchURL string
	doer      httpapi.Doer
}

// Option configures NewClient.
type Option func(*settings)

// WithBaseURL overrides the reader host.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.readURL = u
		}
	}
}

// WithSearchBaseURL overrides the search host.
func WithSearchBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.searchURL = u
		}
	}
}

// WithHTTPClient swaps the transport for both hosts.
func WithHTTPClient(d httpapi.Doer) Option {
	return func(s *settings) { s.doer = d }
}

type client struct {
	reader   *httpapi.Client
	searcher *httpapi.Client
}

// NewClient builds a Jina client. Reads and searches have no side effects,
// so both retry throttled and 5xx answers.
func NewClient(apiKey string, opts ...Option) Client {
	s := settings{readURL: "https://r.jina.ai", searchURL: "https://s.jina.ai"}
	for _, o := range opts {
		o(&s)
	}
	common := []httpapi.Option{httpapi.WithRetries(3, time.Second), httpapi.WithDoer(s.doer)}
	return &client{
		reader:   httpapi.New("jina", apiKey, s.readURL, 30*time.Second, common...),
		searcher: httpapi.New("jina", apiKey, s.searchURL, 30*time.Second, common...),
	}
}

func (c *client) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*Page, error) {
	header := map[string]string{"X-Return-Format": "markdown"}
	for _, o := range opts {
		o(header)
	}

	resp, err := c.reader.Send(ctx, httpapi.Request{
		Method:     http.MethodGet,
		Path:       "/" + targetURL,
		Header:     header,
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var env readEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	return &Page{
		Code:    env.Code,
		Title:   env.Data.Title,
		URL:     env.Data.URL,
		Content: env.Data.Content,
		Tokens:  env.Data.Usage.Tokens,
	}, nil
}

func (c *client) Search(ctx context.Context, query string, opts ...SearchOption) (*Results, error) {
	header := map[string]string{}
	q := url.Values{}
	for _, o := range opts {
		o(header, q)
	}

	resp, err := c.searcher.Send(ctx, httpapi.Request{
		Method:     http.MethodGet,
		Path:       "/" + url.PathEscape(query),
		Query:      q,
		Header:     header,
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	// 422 means nothing matched.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return &Results{}, nil
	}

	var env searchEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	out := &Results{Hits: make([]Hit, 0, len(env.Data))}
	for _, d := range env.Data {
		out.Hits = append(out.Hits, Hit{
			Title:       d.Title,
			URL:         d.URL,
			Description: d.Description,
			Date:        d.Date,
			Tokens:      d.Usage.Tokens,
		})
	}
	return out, nil
}

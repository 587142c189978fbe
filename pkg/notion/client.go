// Package notion reads the lead queue database and writes enriched leads
// back to Notion through jomei/notionapi.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// defaultRPS is Notion's published average limit per integration.
const defaultRPS = 3

// Client is the slice of the Notion API this service calls.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures NewClient.
type ClientOption func(*apiClient)

// WithRateLimit replaces the default throttle. rps <= 0 turns it off.
func WithRateLimit(rps float64) ClientOption {
	return func(c *apiClient) { c.limiter = newLimiter(rps) }
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
}

type apiClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a throttled client for an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: newLimiter(defaultRPS),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// throttle blocks for a limiter slot. With no limiter it only reports
// whether ctx is already done.
func (c *apiClient) throttle(ctx context.Context) error {
	if c.limiter != nil {
		return c.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// call runs fn after a limiter slot is granted and labels its error.
func call[T any](ctx context.Context, c *apiClient, label string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.throttle(ctx); err != nil {
		return zero, eris.Wrapf(err, "notion: %s: rate limit", label)
	}
	v, err := fn()
	if err != nil {
		return zero, eris.Wrapf(err, "notion: %s", label)
	}
	return v, nil
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return call(ctx, c, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "create page", func() (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "update page "+pageID, func() (*notionapi.Page, error) {
		return c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}

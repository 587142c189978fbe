// Package salesforce pushes enriched leads into Salesforce over the REST API,
// authenticating with the OAuth 2.0 JWT bearer flow.
package salesforce

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the REST surface the lead exporter needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// ClientOption configures NewClient and Connect.
type ClientOption func(*restClient)

// WithRateLimit caps API calls per second. Burst is the integer part of rps,
// at least 1. rps <= 0 leaves calls unthrottled.
func WithRateLimit(rps float64) ClientOption {
	return func(c *restClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// JWTConfig identifies the connected app and the integration user.
type JWTConfig struct {
	LoginURL string
	Username string
	ClientID string
	KeyPath  string
}

func (c JWTConfig) validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.KeyPath) == "" {
		missing = append(missing, "key path")
	}
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return eris.Errorf("sf: %s is required", missing[0])
	default:
		return eris.Errorf("sf: %s are required", strings.Join(missing, " and "))
	}
}

// Connect runs the JWT bearer flow and returns an authenticated Client.
func Connect(cfg JWTConfig, opts ...ClientOption) (Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pem, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "sf: read JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.LoginURL,
		Username:       cfg.Username,
		ConsumerKey:    cfg.ClientID,
		ConsumerRSAPem: string(pem),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sf: authenticate %s", cfg.Username)
	}
	return NewClient(sf, opts...), nil
}

// restClient adapts go-salesforce. The library takes no context, so ctx
// only bounds the limiter wait.
type restClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialized go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &restClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// admit waits for a limiter slot, or reports ctx's error when unthrottled.
func (c *restClient) admit(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func (c *restClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.admit(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	return eris.Wrap(c.sf.Query(soql, out), "sf: query")
}

func (c *restClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.admit(ctx); err != nil {
		return "", eris.Wrap(err, "sf: rate limit")
	}
	res, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrapf(err, "sf: insert %s", sObjectName)
	}
	if !res.Success {
		return "", eris.New(fmt.Sprintf("sf: insert %s failed: %v", sObjectName, res.Errors))
	}
	return res.Id, nil
}

func (c *restClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.admit(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	// Copy so the caller's map never gains an Id key.
	record := maps.Clone(fields)
	if record == nil {
		record = map[string]any{}
	}
	record["Id"] = id
	return eris.Wrapf(c.sf.UpdateOne(sObjectName, record), "sf: update %s %s", sObjectName, id)
}

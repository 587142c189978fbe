// Package httpapi is the JSON-over-HTTP transport shared by the research
// vendor clients (Jina, Firecrawl, Perplexity). It owns bearer auth, request
// encoding, optional throttling and the retry loop for read-only calls.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is kept on StatusError.
const maxErrorBody = 4096

// Doer abstracts http.Client.Do so tests can swap the transport.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned by Decode when the vendor answers outside 2xx.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth repeating for a read.
func (e *StatusError) Retryable() bool {
	return RetryableStatus(e.StatusCode)
}

// RetryableStatus is true for throttling and upstream 5xx answers.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client sends JSON requests to one vendor base URL.
type Client struct {
	service  string
	token    string
	baseURL  string
	doer     Doer
	limiter  *rate.Limiter
	attempts int
	backoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDoer replaces the underlying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithRateLimit throttles outgoing requests. Non-positive rps disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithRetries lets requests marked Idempotent run up to attempts times,
// doubling the pause after each failure.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

// New builds a client. service prefixes every error message.
func New(service, token, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		service: service,
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		doer: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		attempts: 1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one call. Path is appended to the base URL verbatim.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	Body   any
	// Idempotent calls are retried on transport errors and retryable
	// statuses when the client was built WithRetries.
	Idempotent bool
}

// Response is a fully read vendor answer.
type Response struct {
	Service    string
	StatusCode int
	Body       []byte
}

// Decode unmarshals a 2xx body into out, or returns *StatusError.
func (r *Response) Decode(out any) error {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		body := r.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Service: r.Service, StatusCode: r.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return eris.Wrapf(err, "%s: decode response", r.Service)
	}
	return nil
}

// Send performs req and reads the whole body. Non-2xx answers are returned
// as a Response, not an error; callers decide via Decode.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: marshal request", c.service)
		}
		payload = b
	}

	attempts := 1
	if req.Idempotent {
		attempts = c.attempts
	}
	pause := c.backoff

	var lastErr error
	for attempt := 1; ; attempt++ {
		resp, err := c.sendOnce(ctx, req, payload)
		switch {
		case err == nil && !RetryableStatus(resp.StatusCode):
			return resp, nil
		case err == nil:
			lastErr = &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: string(resp.Body)}
			if attempt >= attempts {
				return resp, nil
			}
		default:
			lastErr = err
			if attempt >= attempts || ctx.Err() != nil {
				return nil, err
			}
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(lastErr, "%s: %s", c.service, ctx.Err())
		case <-time.After(pause):
		}
		pause *= 2
	}
}

func (c *Client) sendOnce(ctx context.Context, req Request, payload []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limit", c.service)
		}
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: build request", c.service)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range req.Header {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: %s %s", c.service, req.Method, req.Path)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response", c.service)
	}
	return &Response{Service: c.service, StatusCode: resp.StatusCode, Body: data}, nil
}

// Package scrape fetches public profile pages, falling back from a free
// direct fetch to hosted readers.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Chain runs scrapers in priority order and returns the first readable
// page. Each provider has its own breaker key ("scrape:<name>"), so one that
// keeps failing is skipped until its reset timeout passes.
type Chain struct {
	scrapers []Scraper
	breakers *resilience.Breakers
}

// NewChain builds a Chain. A nil breakers disables circuit breaking.
func NewChain(breakers *resilience.Breakers, scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers, breakers: breakers}
}

// Len is the number of configured scrapers.
func (c *Chain) Len() int { return len(c.scrapers) }

// Scrape returns the first successful result for targetURL. When every
// eligible scraper fails the error lists each failure in order.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var failures []string
	var last error

	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: canceled")
		}

		res, err := c.attempt(ctx, s, targetURL)
		if err == nil && res != nil {
			return res, nil
		}
		if err == nil {
			err = eris.Errorf("%s: no result", s.Name())
		}
		zap.L().Debug("scrape: provider failed",
			zap.String("scraper", s.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
		last = err
	}

	if last == nil {
		return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
	}
	return nil, eris.Wrapf(last, "scrape: all scrapers failed [%s]", strings.Join(failures, "; "))
}

func (c *Chain) attempt(ctx context.Context, s Scraper, targetURL string) (*Result, error) {
	if c.breakers == nil {
		return s.Scrape(ctx, targetURL)
	}
	res, err := resilience.ExecuteVal(ctx, c.breakers.Get("scrape:"+s.Name()), func(ctx context.Context) (*Result, error) {
		return s.Scrape(ctx, targetURL)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, eris.Wrap(err, "circuit open")
	}
	return res, err
}

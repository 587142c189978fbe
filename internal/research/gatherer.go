// Package research gathers public web context about a lead before the
// research stage runs: the profile page itself and recent news mentioning
// the person. Every source is optional and failures degrade to less context.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/cost"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/scrape"
	"github.com/sells-group/lead-enricher/pkg/jina"
	"github.com/sells-group/lead-enricher/pkg/perplexity"
)

const (
	// DefaultMaxNews caps the number of news results rendered into context.
	DefaultMaxNews = 5
	// DefaultMaxProfileChars truncates scraped profile content.
	DefaultMaxProfileChars = 6000
	// DefaultCacheTTL is how long gathered context is reused for a profile.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

const profilePrompt = `Summarize the public professional profile of %s%s.
Profile URL: %s
Include current role, previous roles, education, areas of expertise, and any
public talks, posts or publications. Return plain text only.`

// Cache stores gathered context by profile URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithChain sets the scrape chain used for the profile page.
func WithChain(chain *scrape.Chain) Option {
	return func(g *Gatherer) { g.chain = chain }
}

// WithPerplexity sets the online search fallback for the profile.
func WithPerplexity(c perplexity.Client) Option {
	return func(g *Gatherer) { g.pplx = c }
}

// WithJina sets the search client used for recent news.
func WithJina(c jina.Client) Option {
	return func(g *Gatherer) { g.search = c }
}

// WithMaxNews overrides DefaultMaxNews. Zero disables news search.
func WithMaxNews(n int) Option {
	return func(g *Gatherer) { g.maxNews = n }
}

// WithCache reuses gathered context for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *Gatherer) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// Gatherer collects profile content and recent news for a lead.
type Gatherer struct {
	chain    *scrape.Chain
	pplx     perplexity.Client
	search   jina.Client
	costs    *cost.Calculator
	cache    Cache
	cacheTTL time.Duration
	maxNews  int
	maxChars int
}

// NewGatherer creates a Gatherer. Sources left unset are skipped.
func NewGatherer(costs *cost.Calculator, opts ...Option) *Gatherer {
	g := &Gatherer{
		costs:    costs,
		maxNews:  DefaultMaxNews,
		maxChars: DefaultMaxProfileChars,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.costs == nil {
		g.costs = cost.NewCalculator(cost.DefaultRates())
	}
	return g
}

// Gather returns whatever context the configured sources produced. It only
// errors when ctx is done.
func (g *Gatherer) Gather(ctx context.Context, lead model.Lead) (*model.WebContext, error) {
	log := zap.L().With(zap.String("profile_url", lead.ProfileURL), zap.String("phase", "gather"))

	if web, ok := g.cached(ctx, log, lead.ProfileURL); ok {
		log.Debug("research: using cached web context")
		return web, nil
	}

	web := &model.WebContext{}
	g.profile(ctx, log, lead, web)
	g.news(ctx, log, lead, web)

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "research: gather")
	}

	g.store(ctx, log, lead.ProfileURL, web)

	log.Debug("research: gathered web context",
		zap.Int("profile_chars", len(web.ProfileContent)),
		zap.Int("sources", len(web.Sources)),
		zap.Float64("cost", web.Cost),
	)
	return web, nil
}

// profile tries the scrape chain first and falls back to a single Perplexity
// query when the chain fails or returns a login wall.
func (g *Gatherer) profile(ctx context.Context, log *zap.Logger, lead model.Lead, web *model.WebContext) {
	var content string

	if g.chain != nil && g.chain.Len() > 0 {
		res, err := g.chain.Scrape(ctx, lead.ProfileURL)
		switch {
		case err != nil:
			log.Debug("research: profile scrape failed, falling back to perplexity", zap.Error(err))
		case res != nil:
			web.Cost += g.scrapeCost(res)
			if scrape.IsLoginWall(res.Page.Markdown) {
				log.Debug("research: profile scrape returned login wall", zap.String("source", res.Source))
			} else {
				content = res.Page.Markdown
				web.Sources = append(web.Sources, res.Source)
			}
		}
	}

	if content == "" && g.pplx != nil && ctx.Err() == nil {
		ans, err := g.pplx.Ask(ctx, perplexity.Question{
			Prompt:      fmt.Sprintf(profilePrompt, lead.FullName(), roleSuffix(lead), lead.ProfileURL),
			Temperature: 0.2,
		})
		if err != nil {
			log.Warn("research: perplexity profile search failed", zap.Error(err))
		} else {
			web.Cost += g.costs.PerplexityQuery()
			if text := ans.Text; text != "" {
				content = text
				web.Sources = append(web.Sources, "perplexity")
			}
		}
	}

	web.ProfileContent = truncate(strings.TrimSpace(content), g.maxChars)
}

// news searches for recent mentions of the lead by name and company.
func (g *Gatherer) news(ctx context.Context, log *zap.Logger, lead model.Lead, web *model.WebContext) {
	if g.search == nil || g.maxNews <= 0 || lead.FullName() == "" || ctx.Err() != nil {
		return
	}

	query := fmt.Sprintf("%q", lead.FullName())
	if lead.Company != "" {
		query += " " + lead.Company
	}

	resp, err := g.search.Search(ctx, query, jina.WithoutContent())
	if err != nil {
		log.Warn("research: news search failed", zap.Error(err))
		return
	}
	web.Cost += g.costs.Jina(resp.Tokens())

	var b strings.Builder
	n := 0
	for _, r := range resp.Hits {
		if n >= g.maxNews {
			break
		}
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)", strings.TrimSpace(r.Title), r.URL)
		if desc := strings.TrimSpace(r.Description); desc != "" {
			b.WriteString(": " + desc)
		}
		b.WriteByte('\n')
		n++
	}
	if n > 0 {
		web.RecentNews = strings.TrimRight(b.String(), "\n")
		web.Sources = append(web.Sources, "jina_search")
	}
}

func (g *Gatherer) scrapeCost(res *scrape.Result) float64 {
	switch res.Source {
	case "jina":
		return g.costs.Jina(res.Tokens)
	case "firecrawl":
		return g.costs.FirecrawlScrape()
	default:
		return 0
	}
}

func cacheKey(profileURL string) string {
	return "web:" + profileURL
}

func (g *Gatherer) cached(ctx context.Context, log *zap.Logger, profileURL string) (*model.WebContext, bool) {
	if g.cache == nil {
		return nil, false
	}
	raw, ok, err := g.cache.Get(ctx, cacheKey(profileURL))
	if err != nil {
		log.Debug("research: cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var web model.WebContext
	if err := json.Unmarshal(raw, &web); err != nil {
		log.Debug("research: discarding unreadable cache entry", zap.Error(err))
		return nil, false
	}
	// Cached context was already paid for.
	web.Cost = 0
	return &web, true
}

func (g *Gatherer) store(ctx context.Context, log *zap.Logger, profileURL string, web *model.WebContext) {
	if g.cache == nil || (web.ProfileContent == "" && web.RecentNews == "") {
		return
	}
	raw, err := json.Marshal(web)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(profileURL), raw, g.cacheTTL); err != nil {
		log.Debug("research: failed to cache web context", zap.Error(err))
	}
}

func roleSuffix(lead model.Lead) string {
	switch {
	case lead.Title != "" && lead.Company != "":
		return fmt.Sprintf(" (%s at %s)", lead.Title, lead.Company)
	case lead.Company != "":
		return fmt.Sprintf(" (%s)", lead.Company)
	case lead.Title != "":
		return fmt.Sprintf(" (%s)", lead.Title)
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

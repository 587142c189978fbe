// Package cost estimates the USD cost of enrichment calls.
package cost

import (
	"strings"

	"github.com/sells-group/lead-enricher/internal/model"
)

const perMillion = 1e6

// Rates holds pricing configuration.
type Rates struct {
	// Models is keyed by model ID across every reasoning provider.
	Models     map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Jina       JinaRate             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlRate holds Firecrawl pricing.
type FirecrawlRate struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// Calculator prices reasoning calls and vendor lookups from a Rates table.
type Calculator struct {
	rates Rates
}

func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// rate finds the pricing for a model ID. Providers often report a dated
// variant ("gpt-4o-2024-08-06"), so the longest configured ID that prefixes
// it wins when there is no exact entry.
func (c *Calculator) rate(id string) (ModelRate, bool) {
	if r, ok := c.rates.Models[id]; ok {
		return r, true
	}
	best, found := "", false
	for k := range c.rates.Models {
		if strings.HasPrefix(id, k) && len(k) > len(best) {
			best, found = k, true
		}
	}
	return c.rates.Models[best], found
}

// Generation prices one reasoning call. Cache writes and reads are billed
// as multiples of the input price. Unknown models cost nothing.
func (c *Calculator) Generation(modelID string, u model.TokenUsage) float64 {
	r, ok := c.rate(modelID)
	if !ok {
		return 0
	}
	billed := float64(u.InputTokens)*r.Input +
		float64(u.OutputTokens)*r.Output +
		float64(u.CacheCreationTokens)*r.Input*r.CacheWriteMul +
		float64(u.CacheReadTokens)*r.Input*r.CacheReadMul
	return billed / perMillion
}

// Jina prices reader or search tokens.
func (c *Calculator) Jina(tokens int) float64 {
	return float64(tokens) * c.rates.Jina.PerMTok / perMillion
}

// PerplexityQuery is the flat price of one question.
func (c *Calculator) PerplexityQuery() float64 { return c.rates.Perplexity.PerQuery }

// FirecrawlScrape spreads the monthly plan over its included credits. One
// scrape uses one credit.
func (c *Calculator) FirecrawlScrape() float64 {
	fc := c.rates.Firecrawl
	if fc.CreditsIncluded <= 0 {
		return 0
	}
	return fc.PlanMonthly / fc.CreditsIncluded
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	claude := func(in, out float64) ModelRate {
		return ModelRate{Input: in, Output: out, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  claude(0.80, 4.00),
			"claude-sonnet-4-5-20250929": claude(3.00, 15.00),
			"claude-opus-4-6":            claude(15.00, 75.00),
			"gpt-4o":                     {Input: 2.50, Output: 10.00, CacheReadMul: 0.5},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
			"gpt-5-chat":                 {Input: 1.25, Output: 10.00, CacheReadMul: 0.1},
			"gemini-2.5-flash":           {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":             {Input: 1.25, Output: 10.00},
		},
		Jina:       JinaRate{PerMTok: 0.02},
		Perplexity: PerplexityRate{PerQuery: 0.005},
		Firecrawl:  FirecrawlRate{PlanMonthly: 19.00, CreditsIncluded: 3000},
	}
}

package main

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/capability"
	"github.com/sells-group/lead-enricher/internal/config"
	"github.com/sells-group/lead-enricher/internal/cost"
	"github.com/sells-group/lead-enricher/internal/export"
	"github.com/sells-group/lead-enricher/internal/index"
	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/research"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/scrape"
	"github.com/sells-group/lead-enricher/internal/stage"
	"github.com/sells-group/lead-enricher/internal/store"
	anthropicpkg "github.com/sells-group/lead-enricher/pkg/anthropic"
	"github.com/sells-group/lead-enricher/pkg/firecrawl"
	"github.com/sells-group/lead-enricher/pkg/jina"
	"github.com/sells-group/lead-enricher/pkg/notion"
	"github.com/sells-group/lead-enricher/pkg/perplexity"
	"github.com/sells-group/lead-enricher/pkg/salesforce"
)

// Vendor API throttles, requests per second.
const (
	notionRPS     = 3
	salesforceRPS = 5
)

// appEnv holds everything the serve, process and batch commands need.
type appEnv struct {
	Store   store.Store
	Service *leads.Service
	Adapter *capability.Adapter
	Index   *index.Index // nil when disabled or unreachable
	Notion  notion.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Adapter != nil {
		_ = e.Adapter.Close()
	}
	if e.Index != nil {
		_ = e.Index.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode, opens the store and builds the
// enrichment service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tasks, err := stage.LoadTasks(cfg.Capability.TasksFile)
	if err != nil {
		return nil, err
	}

	env := &appEnv{}
	env.Store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(cfg.Pricing.Rates())

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Adapter = capability.NewAdapter(provider, capability.AdapterConfig{
		Timeout:           cfg.Capability.Timeout(),
		RequestsPerMinute: cfg.Capability.RequestsPerMinute,
		Burst:             cfg.Capability.Burst,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Capability.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.Capability.BreakerResetSecs) * time.Second,
		},
	}, calc)

	env.Index, err = index.Open(ctx, cfg.Redis)
	if err != nil {
		var ue *index.UnavailableError
		if !errors.As(err, &ue) {
			env.Close()
			return nil, err
		}
		zap.L().Warn("index unavailable, continuing without it", zap.String("reason", ue.Reason))
	}

	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(notionRPS))
	}

	orchOpts := []pipeline.Option{}
	if cfg.Research.Enabled {
		orchOpts = append(orchOpts, pipeline.WithGatherer(newGatherer(cfg, calc, env.Index)))
	}
	orch := pipeline.NewOrchestrator(env.Adapter, tasks, orchOpts...)

	exporters, err := newExporters(cfg, env.Notion)
	if err != nil {
		env.Close()
		return nil, err
	}

	svcOpts := []leads.Option{leads.WithExporters(exporters...)}
	if env.Index != nil {
		svcOpts = append(svcOpts, leads.WithIndexer(env.Index))
	}
	env.Service = leads.NewService(env.Store, orch, svcOpts...)

	zap.L().Info("enrichment service ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.Bool("research", cfg.Research.Enabled),
		zap.Bool("index", env.Index != nil),
		zap.Int("exporters", len(exporters)),
	)
	return env, nil
}

// openStore opens the configured store and creates its schema.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "sqlite":
		st, err = store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		}, resilience.StartupBackoff("postgres"))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Create(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "create store schema")
	}
	return st, nil
}

// newProvider builds the reasoning provider named by capability.provider.
func newProvider(ctx context.Context, c *config.Config) (capability.Provider, error) {
	switch c.Capability.Provider {
	case "anthropic":
		return capability.NewAnthropicProvider(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Model), nil
	case "openai":
		return capability.NewOpenAIProvider(capability.OpenAIConfig{
			APIKey:  c.OpenAI.Key,
			Model:   c.OpenAI.Model,
			BaseURL: c.OpenAI.BaseURL,
		})
	case "azure":
		return capability.NewOpenAIProvider(capability.OpenAIConfig{
			APIKey:     c.Azure.Key,
			Model:      c.Azure.Deployment,
			BaseURL:    c.Azure.Endpoint,
			Azure:      true,
			APIVersion: c.Azure.APIVersion,
		})
	case "gemini":
		return capability.NewGeminiProvider(ctx, capability.GeminiConfig{
			APIKey:    c.Gemini.Key,
			Model:     c.Gemini.Model,
			Grounding: c.Gemini.Grounding,
		})
	default:
		return nil, eris.Errorf("unsupported capability provider: %s", c.Capability.Provider)
	}
}

// newGatherer builds the web context gatherer. Scrapers and search clients
// without credentials are left out.
func newGatherer(c *config.Config, calc *cost.Calculator, idx *index.Index) *research.Gatherer {
	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: c.Capability.BreakerThreshold,
		ResetTimeout:     time.Duration(c.Capability.BreakerResetSecs) * time.Second,
	})

	scrapers := []scrape.Scraper{scrape.NewLocalScraper()}
	opts := []research.Option{research.WithMaxNews(c.Research.MaxNews)}

	if c.Jina.Key != "" {
		jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
		if c.Jina.SearchBaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
		}
		jc := jina.NewClient(c.Jina.Key, jinaOpts...)
		scrapers = append(scrapers, scrape.NewJinaAdapter(jc))
		opts = append(opts, research.WithJina(jc))
	}
	if c.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fc))
	}
	if c.Perplexity.Key != "" {
		opts = append(opts, research.WithPerplexity(perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)))
	}
	if idx != nil {
		opts = append(opts, research.WithCache(idx, time.Duration(c.Research.CacheTTLHours)*time.Hour))
	}

	opts = append(opts, research.WithChain(scrape.NewChain(breakers, scrapers...)))
	return research.NewGatherer(calc, opts...)
}

// newExporters builds the configured CRM exporters.
func newExporters(c *config.Config, nc notion.Client) ([]leads.Exporter, error) {
	var out []leads.Exporter
	if c.Notion.ExportLeads && nc != nil {
		out = append(out, export.NewNotionExporter(nc, c.Notion.LeadDB))
	}
	if c.Salesforce.Enabled {
		sf, err := salesforce.Connect(salesforce.JWTConfig{
			LoginURL: c.Salesforce.LoginURL,
			Username: c.Salesforce.Username,
			ClientID: c.Salesforce.ClientID,
			KeyPath:  c.Salesforce.KeyPath,
		}, salesforce.WithRateLimit(salesforceRPS))
		if err != nil {
			return nil, eris.Wrap(err, "init salesforce")
		}
		out = append(out, export.NewSalesforceExporter(sf))
	}
	return out, nil
}

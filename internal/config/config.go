package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-enricher/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Capability CapabilityConfig `yaml:"capability" mapstructure:"capability"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Azure      AzureConfig      `yaml:"azure" mapstructure:"azure"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lead record store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CapabilityConfig selects the reasoning provider and bounds each call.
type CapabilityConfig struct {
	// Provider is one of anthropic, openai, azure or gemini.
	Provider          string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int    `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold  int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	// TasksFile optionally overrides the built-in stage task text.
	TasksFile string `yaml:"tasks_file" mapstructure:"tasks_file"`
}

// Timeout returns the per-call timeout.
func (c CapabilityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	Deployment string `yaml:"deployment" mapstructure:"deployment"`
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
}

// GeminiConfig holds Gemini Developer API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	Grounding bool   `yaml:"grounding" mapstructure:"grounding"`
}

// ResearchConfig configures web gathering ahead of the research stage.
type ResearchConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	MaxNews       int  `yaml:"max_news" mapstructure:"max_news"`
	CacheTTLHours int  `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// RedisConfig configures the auxiliary lead index and the web context cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	// LeadDB receives a page per new lead when ExportLeads is set.
	LeadDB      string `yaml:"lead_db" mapstructure:"lead_db"`
	ExportLeads bool   `yaml:"export_leads" mapstructure:"export_leads"`
	// QueueDB holds pages with Status = Queued for batch intake.
	QueueDB string `yaml:"queue_db" mapstructure:"queue_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// PricingConfig holds per-provider pricing overrides.
type PricingConfig struct {
	Models     map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlPricing        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// FirecrawlPricing holds Firecrawl pricing.
type FirecrawlPricing struct {
	PlanMonthly     float64 `yaml:"plan_monthly" mapstructure:"plan_monthly"`
	CreditsIncluded float64 `yaml:"credits_included" mapstructure:"credits_included"`
}

// Rates merges configured pricing over the built-in defaults.
func (p PricingConfig) Rates() cost.Rates {
	rates := cost.DefaultRates()
	for id, m := range p.Models {
		rates.Models[id] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	if p.Jina.PerMTok > 0 {
		rates.Jina.PerMTok = p.Jina.PerMTok
	}
	if p.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Firecrawl.CreditsIncluded > 0 {
		rates.Firecrawl = cost.FirecrawlRate{
			PlanMonthly:     p.Firecrawl.PlanMonthly,
			CreditsIncluded: p.Firecrawl.CreditsIncluded,
		}
	}
	return rates
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("capability.provider", "anthropic")
	v.SetDefault("capability.timeout_secs", 120)
	v.SetDefault("capability.requests_per_minute", 0)
	v.SetDefault("capability.burst", 1)
	v.SetDefault("capability.breaker_threshold", 5)
	v.SetDefault("capability.breaker_reset_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("azure.api_version", "2024-06-01")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("research.enabled", true)
	v.SetDefault("research.max_news", 5)
	v.SetDefault("research.cache_ttl_hours", 168)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "leadgen:")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("batch.max_concurrent_leads", 5)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is the command name:
// serve, process, batch, leads or migrate.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Store.DatabaseURL) == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "leads", "migrate":
	case "serve", "process", "batch":
		problems = append(problems, c.validateCapability()...)
		if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
			problems = append(problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
		}
		if mode == "batch" && (c.Batch.MaxConcurrentLeads < 1 || c.Batch.MaxConcurrentLeads > 50) {
			problems = append(problems, fmt.Sprintf("batch.max_concurrent_leads must be 1-50, got %d", c.Batch.MaxConcurrentLeads))
		}
		if c.Notion.ExportLeads && (c.Notion.Token == "" || c.Notion.LeadDB == "") {
			problems = append(problems, "notion.token and notion.lead_db are required when notion.export_leads is set")
		}
		if c.Salesforce.Enabled && (c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
			problems = append(problems, "salesforce.client_id, salesforce.username and salesforce.key_path are required when salesforce.enabled is set")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateCapability() []string {
	var problems []string
	switch c.Capability.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			problems = append(problems, "openai.key is required")
		}
	case "azure":
		if c.Azure.Key == "" || c.Azure.Endpoint == "" || c.Azure.Deployment == "" {
			problems = append(problems, "azure.key, azure.endpoint and azure.deployment are required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("capability.provider must be anthropic, openai, azure or gemini, got %q", c.Capability.Provider))
	}
	if c.Capability.TimeoutSecs <= 0 {
		problems = append(problems, "capability.timeout_secs must be positive")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

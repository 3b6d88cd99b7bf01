package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/claimsift/claimsift/internal/store"
)

// Config aggregates every tunable subsystem, in roughly the order the
// check pipeline touches them.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Verify     VerifyConfig     `yaml:"verify" mapstructure:"verify"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Blocklist  BlocklistConfig  `yaml:"blocklist" mapstructure:"blocklist"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Pool sizing only applies
// to the postgres driver.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// DiscoveryConfig configures candidate source discovery.
type DiscoveryConfig struct {
	Provider              string   `yaml:"provider" mapstructure:"provider"`
	OverRequestFactor     int      `yaml:"over_request_factor" mapstructure:"over_request_factor"`
	TimeoutSecs           int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExcludeDomains        []string `yaml:"exclude_domains" mapstructure:"exclude_domains"`
	ExclusionsFile        string   `yaml:"exclusions_file" mapstructure:"exclusions_file"`
	FoldWWW               bool     `yaml:"fold_www" mapstructure:"fold_www"`
	TrackingParamPrefixes []string `yaml:"tracking_param_prefixes" mapstructure:"tracking_param_prefixes"`
}

// FetchConfig configures article fetching and extraction.
type FetchConfig struct {
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRedirects       int     `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxBodyBytes       int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MinBodyChars       int     `yaml:"min_body_chars" mapstructure:"min_body_chars"`
	PerHostRPS         float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"`
	RespectRobots      bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	RobotsCacheTTLMins int     `yaml:"robots_cache_ttl_mins" mapstructure:"robots_cache_ttl_mins"`
	CacheTTLHours      int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	ReaderFallback     bool    `yaml:"reader_fallback" mapstructure:"reader_fallback"`
	Reader             string  `yaml:"reader" mapstructure:"reader"` // fallback service: jina or firecrawl
}

// VerifyConfig configures claim verification.
type VerifyConfig struct {
	Oracle          string `yaml:"oracle" mapstructure:"oracle"`
	MaxExcerptChars int    `yaml:"max_excerpt_chars" mapstructure:"max_excerpt_chars"`
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig bounds pipeline fan-out.
type PipelineConfig struct {
	FetchConcurrency  int `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	VerifyConcurrency int `yaml:"verify_concurrency" mapstructure:"verify_concurrency"`
}

// AnthropicConfig selects credentials and model for the default oracle.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig covers the search-grounded oracle.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig covers the OpenAI oracle.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig points at the Reader endpoint used as extraction fallback
// and the Search endpoint used as a discovery provider.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// GoogleConfig holds Google Programmable Search settings.
type GoogleConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	SearchEngineID string `yaml:"search_engine_id" mapstructure:"search_engine_id"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig covers the alternative extraction fallback service.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials and the report database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReportDB string `yaml:"report_db" mapstructure:"report_db"`
}

// BlocklistConfig configures the shared domain blocklist source.
type BlocklistConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures pipeline health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	OracleErrorRateThreshold float64 `yaml:"oracle_error_rate_threshold" mapstructure:"oracle_error_rate_threshold"`
	DLQThreshold             int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig selects log verbosity and output encoding.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load layers defaults, an optional config.yaml in the working directory,
// and CLAIMSIFT_* environment variables, later sources winning.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLAIMSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claimsift.db")
	// Zero pool sizes fall back to the store package defaults.
	v.SetDefault("store.pool.max_conns", 0)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("discovery.provider", "duckduckgo")
	v.SetDefault("discovery.over_request_factor", 2)
	v.SetDefault("discovery.timeout_secs", 15)
	v.SetDefault("discovery.fold_www", true)
	v.SetDefault("discovery.tracking_param_prefixes", []string{"utm_", "fbclid", "gclid", "ref", "mc_cid", "mc_eid"})
	v.SetDefault("fetch.timeout_secs", 12)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_body_bytes", 2*1024*1024)
	v.SetDefault("fetch.min_body_chars", 280)
	v.SetDefault("fetch.per_host_rps", 2.0)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.robots_cache_ttl_mins", 60)
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("fetch.user_agent", "claimsift/1.0 (+https://github.com/claimsift/claimsift)")
	v.SetDefault("fetch.reader_fallback", true)
	v.SetDefault("fetch.reader", "jina")
	v.SetDefault("verify.oracle", "anthropic")
	v.SetDefault("verify.max_excerpt_chars", 6000)
	v.SetDefault("verify.max_tokens", 1024)
	v.SetDefault("verify.timeout_secs", 45)
	v.SetDefault("pipeline.fetch_concurrency", 4)
	v.SetDefault("pipeline.verify_concurrency", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("blocklist.timeout_secs", 60)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.oracle_error_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_threshold", 25)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	// Credentials and other optional keys default empty so CLAIMSIFT_* env
	// vars reach them: AutomaticEnv only consults the environment for keys
	// viper already knows.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("google.key", "")
	v.SetDefault("google.search_engine_id", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.report_db", "")
	v.SetDefault("blocklist.url", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("discovery.exclusions_file", "")

	// A missing config.yaml is fine; any other read failure is not.
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

// Validate checks that the configuration can support the given mode.
// Modes: "check", "serve", "publish", "blocklist".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Pipeline.FetchConcurrency < 1 || c.Pipeline.FetchConcurrency > 16 {
		problems = append(problems, "pipeline.fetch_concurrency must be between 1 and 16")
	}
	if c.Pipeline.VerifyConcurrency < 1 || c.Pipeline.VerifyConcurrency > 16 {
		problems = append(problems, "pipeline.verify_concurrency must be between 1 and 16")
	}
	if c.Discovery.OverRequestFactor < 1 || c.Discovery.OverRequestFactor > 5 {
		problems = append(problems, "discovery.over_request_factor must be between 1 and 5")
	}
	if c.Fetch.TimeoutSecs <= 0 {
		problems = append(problems, "fetch.timeout_secs must be > 0")
	}

	switch mode {
	case "check":
		switch c.Verify.Oracle {
		case "anthropic", "perplexity", "openai":
		default:
			problems = append(problems, fmt.Sprintf("verify.oracle %q is not one of anthropic, perplexity, openai", c.Verify.Oracle))
		}
		if c.Discovery.Provider == "jina" && c.Jina.Key == "" {
			problems = append(problems, "jina.key is required when discovery.provider is jina")
		}
		if c.Discovery.Provider == "google" {
			if c.Google.Key == "" {
				problems = append(problems, "google.key is required when discovery.provider is google")
			}
			if c.Google.SearchEngineID == "" {
				problems = append(problems, "google.search_engine_id is required when discovery.provider is google")
			}
		}
		switch c.Fetch.Reader {
		case "", "jina":
		case "firecrawl":
			if c.Fetch.ReaderFallback && c.Firecrawl.Key == "" {
				problems = append(problems, "firecrawl.key is required when fetch.reader is firecrawl")
			}
		default:
			problems = append(problems, fmt.Sprintf("fetch.reader %q is not one of jina, firecrawl", c.Fetch.Reader))
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "publish":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ReportDB == "" {
			problems = append(problems, "notion.report_db is required")
		}
	case "blocklist":
		if c.Blocklist.URL == "" {
			problems = append(problems, "blocklist.url is required")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger builds a zap logger from cfg and installs it process-wide
// through zap.ReplaceGlobals.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

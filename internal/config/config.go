// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Broadcast  BroadcastConfig  `yaml:"broadcast" mapstructure:"broadcast"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Proxycurl  ProxycurlConfig  `yaml:"proxycurl" mapstructure:"proxycurl"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	BuiltWith  BuiltWithConfig  `yaml:"builtwith" mapstructure:"builtwith"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BatchConfig configures batch orchestration defaults.
type BatchConfig struct {
	DefaultConcurrency int     `yaml:"default_concurrency" mapstructure:"default_concurrency"`
	SuccessThreshold   float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
	PausePolicy        string  `yaml:"pause_policy" mapstructure:"pause_policy"`
	RetentionMinutes   int     `yaml:"retention_minutes" mapstructure:"retention_minutes"`
}

// BroadcastConfig configures the progress broadcaster.
type BroadcastConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`
	HeartbeatSecs    int `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
}

// RetryConfig configures stage-level retry of transient provider errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// PipelineConfig configures per-stage behavior.
type PipelineConfig struct {
	PolicyPath          string `yaml:"policy_path" mapstructure:"policy_path"`
	ProfileTimeoutSecs  int    `yaml:"profile_timeout_secs" mapstructure:"profile_timeout_secs"`
	OrgTimeoutSecs      int    `yaml:"org_timeout_secs" mapstructure:"org_timeout_secs"`
	TechTimeoutSecs     int    `yaml:"tech_timeout_secs" mapstructure:"tech_timeout_secs"`
	SynthesisTimeoutSecs int   `yaml:"synthesis_timeout_secs" mapstructure:"synthesis_timeout_secs"`
}

// ProxycurlConfig holds the LinkedIn profile lookup provider settings.
type ProxycurlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader settings for organization crawling.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BuiltWithConfig holds the technology-footprint provider settings.
type BuiltWithConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds the generative-text provider settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExportConfig configures the batch artifact export.
type ExportConfig struct {
	Dir string    `yaml:"dir" mapstructure:"dir"`
	FTP FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig configures the optional FTP artifact drop.
type FTPConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
}

// NotionConfig holds the optional Notion export destination.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ProspectDB string `yaml:"prospect_db" mapstructure:"prospect_db"`
}

// SalesforceConfig holds the optional Salesforce sync destination.
type SalesforceConfig struct {
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	KeyPath  string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string  `yaml:"login_url" mapstructure:"login_url"`
	RateRPS  float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.default_concurrency", 5)
	v.SetDefault("batch.success_threshold", 0.8)
	v.SetDefault("batch.pause_policy", "drain")
	v.SetDefault("batch.retention_minutes", 60)
	v.SetDefault("broadcast.subscriber_buffer", 64)
	v.SetDefault("broadcast.heartbeat_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("pipeline.profile_timeout_secs", 30)
	v.SetDefault("pipeline.org_timeout_secs", 120)
	v.SetDefault("pipeline.tech_timeout_secs", 60)
	v.SetDefault("pipeline.synthesis_timeout_secs", 120)
	v.SetDefault("proxycurl.base_url", "https://nubela.co/proxycurl")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("builtwith.base_url", "https://api.builtwith.com")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_rps", 5)

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

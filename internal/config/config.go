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
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Captcha  CaptchaConfig  `yaml:"captcha" mapstructure:"captcha"`
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Proxy    ProxyConfig    `yaml:"proxy" mapstructure:"proxy"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// RegistryConfig holds the target registry's endpoints and pacing.
type RegistryConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CaptchaConfig configures challenge solving.
type CaptchaConfig struct {
	TranscriberURL string `yaml:"transcriber_url" mapstructure:"transcriber_url"`
	TranscriberKey string `yaml:"transcriber_key" mapstructure:"transcriber_key"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BudgetSecs     int    `yaml:"budget_secs" mapstructure:"budget_secs"`
}

// CrawlConfig configures query execution and retry behavior.
type CrawlConfig struct {
	EntityTypes []string    `yaml:"entity_types" mapstructure:"entity_types"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures transient-failure retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ProxyConfig configures the free-proxy finder.
type ProxyConfig struct {
	ListURL   string `yaml:"list_url" mapstructure:"list_url"`
	TestURL   string `yaml:"test_url" mapstructure:"test_url"`
	MaxChecks int    `yaml:"max_checks" mapstructure:"max_checks"`
}

// StoreConfig configures the crawl-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the inspection server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultEntityTypes covers the common business suffixes; together they
// sweep effectively the whole registry.
var defaultEntityTypes = []string{
	"llc", "inc", "corp", "company", "limited",
	"enterprises", "holdings", "group", "services", "solutions",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("registry.base_url", "https://registry.example.gov")
	v.SetDefault("registry.requests_per_second", 1.0)
	v.SetDefault("registry.timeout_secs", 30)
	v.SetDefault("captcha.max_attempts", 5)
	v.SetDefault("captcha.budget_secs", 300)
	v.SetDefault("crawl.entity_types", defaultEntityTypes)
	v.SetDefault("crawl.retry.max_attempts", 3)
	v.SetDefault("crawl.retry.initial_backoff_ms", 1000)
	v.SetDefault("crawl.retry.max_backoff_ms", 30000)
	v.SetDefault("proxy.list_url", "https://free-proxy-list.net/en/")
	v.SetDefault("proxy.test_url", "https://httpbin.org/ip")
	v.SetDefault("proxy.max_checks", 20)
	v.SetDefault("store.path", "registry-scraper.db")
	v.SetDefault("server.port", 8080)
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

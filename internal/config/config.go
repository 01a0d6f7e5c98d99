// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Core components never
// read viper directly; they receive the relevant sub-struct or plain
// parameters from here.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Crawler CrawlerConfig `mapstructure:"crawler" yaml:"crawler"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser the engine drives.
type BrowserConfig struct {
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// CrawlerConfig tunes the crawl engine. Every value here reaches the core as
// an explicit parameter.
type CrawlerConfig struct {
	// CrawlInterval is the inter-page pause of a pagination walk.
	CrawlInterval time.Duration `mapstructure:"crawl_interval" yaml:"crawl_interval"`
	// ConcurrencyLimit bounds concurrent detail resolutions.
	ConcurrencyLimit int `mapstructure:"concurrency_limit" yaml:"concurrency_limit"`
	// MaxLoginPolls and LoginPollInterval bound the interactive login wait.
	MaxLoginPolls     int           `mapstructure:"max_login_polls" yaml:"max_login_polls"`
	LoginPollInterval time.Duration `mapstructure:"login_poll_interval" yaml:"login_poll_interval"`
	// RequestTimeout applies per API request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RequestsPerSecond paces outbound API calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// PageSize / SubPageSize are the platform page sizes for post and
	// sub-comment walks.
	PageSize    int `mapstructure:"page_size" yaml:"page_size"`
	SubPageSize int `mapstructure:"sub_page_size" yaml:"sub_page_size"`
}

// ServerConfig configures the thin HTTP request layer.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "redcrawl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")

	// -- Crawler --
	v.SetDefault("crawler.crawl_interval", "1s")
	v.SetDefault("crawler.concurrency_limit", 5)
	v.SetDefault("crawler.max_login_polls", 600)
	v.SetDefault("crawler.login_poll_interval", "1s")
	v.SetDefault("crawler.request_timeout", "10s")
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.page_size", 30)
	v.SetDefault("crawler.sub_page_size", 10)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Crawler.ConcurrencyLimit <= 0 {
		return fmt.Errorf("crawler.concurrency_limit must be a positive integer")
	}
	if c.Crawler.MaxLoginPolls <= 0 {
		return fmt.Errorf("crawler.max_login_polls must be a positive integer")
	}
	if c.Crawler.LoginPollInterval <= 0 {
		return fmt.Errorf("crawler.login_poll_interval must be a positive duration")
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return fmt.Errorf("crawler.requests_per_second must be positive")
	}
	return nil
}

// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "redcrawl", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, time.Second, cfg.Crawler.CrawlInterval)
	assert.Equal(t, 5, cfg.Crawler.ConcurrencyLimit)
	assert.Equal(t, 600, cfg.Crawler.MaxLoginPolls)
	assert.Equal(t, time.Second, cfg.Crawler.LoginPollInterval)
	assert.Equal(t, 10*time.Second, cfg.Crawler.RequestTimeout)
	assert.Equal(t, 30, cfg.Crawler.PageSize)
	assert.Equal(t, 10, cfg.Crawler.SubPageSize)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("crawler.concurrency_limit", 12)
	v.Set("crawler.crawl_interval", "250ms")
	v.Set("browser.headless", false)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Crawler.ConcurrencyLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawler.CrawlInterval)
	assert.False(t, cfg.Browser.Headless)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Crawler.ConcurrencyLimit = 0 }},
		{"zero polls", func(c *Config) { c.Crawler.MaxLoginPolls = 0 }},
		{"zero poll interval", func(c *Config) { c.Crawler.LoginPollInterval = 0 }},
		{"zero rps", func(c *Config) { c.Crawler.RequestsPerSecond = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Telegram transport modes
const (
	TelegramModePolling  = "polling"
	TelegramModeWebhook  = "webhook"
	TelegramModeDisabled = "disabled"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig contains the bot settings
type TelegramConfig struct {
	Mode          string `yaml:"mode"`
	Token         string `yaml:"token"`
	AdminUserID   int64  `yaml:"admin_user_id"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"` // last path segment of the webhook route
	PollTimeout   string `yaml:"poll_timeout"`
}

// AdminConfig contains the admin HTTP API token
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig contains rate limiting configuration for /verify
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Default returns a configuration that runs with nothing but BOT_TOKEN set.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{ListenAddr: ":5000"},
		Database: DatabaseConfig{Path: "licenses.db"},
		Telegram: TelegramConfig{
			Mode:        TelegramModePolling,
			PollTimeout: "60s",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
			Burst:             60,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Telegram.Mode {
	case TelegramModePolling, TelegramModeWebhook:
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required in %s mode", c.Telegram.Mode)
		}
	case TelegramModeDisabled:
	default:
		return fmt.Errorf("telegram.mode must be one of: polling, webhook, disabled")
	}

	if c.Telegram.Mode == TelegramModeWebhook {
		u, err := url.Parse(c.Telegram.WebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("telegram.webhook_url must be an https URL in webhook mode")
		}
		if !validWebhookSecret(c.Telegram.WebhookSecret) {
			return fmt.Errorf("telegram.webhook_secret is required in webhook mode (1-256 characters A-Z, a-z, 0-9, _ and -)")
		}
	}

	if c.Telegram.PollTimeout != "" {
		if _, err := time.ParseDuration(c.Telegram.PollTimeout); err != nil {
			return fmt.Errorf("telegram.poll_timeout is invalid: %w", err)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive")
		}
	}

	return nil
}

// Warnings lists settings that are valid but probably unintended
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Telegram.AdminUserID == 0 && c.Telegram.Mode != TelegramModeDisabled {
		warnings = append(warnings, "telegram.admin_user_id is not set; /list will be refused for everyone")
	}
	if c.Admin.Token == "" {
		warnings = append(warnings, "admin.token is not set; the admin HTTP API is disabled")
	}
	return warnings
}

// GetPollTimeout returns the long-polling timeout, 60s when unset
func (c *Config) GetPollTimeout() time.Duration {
	d, err := time.ParseDuration(c.Telegram.PollTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// WebhookEndpoint returns the full URL Telegram should post updates to:
// the base URL, WebhookPath, then the webhook secret
func (c *Config) WebhookEndpoint() string {
	base := strings.TrimSuffix(c.Telegram.WebhookURL, "/")
	base = strings.TrimSuffix(base, WebhookPath)
	return base + WebhookPath + "/" + c.Telegram.WebhookSecret
}

// WebhookPath is the route prefix that receives Telegram updates
const WebhookPath = "/webhook"

func validWebhookSecret(secret string) bool {
	if secret == "" || len(secret) > 256 {
		return false
	}
	for _, r := range secret {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

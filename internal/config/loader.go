package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envOverrides lists the environment variables that take precedence over
// the YAML file. PORT and RENDER_EXTERNAL_URL are set by the hosting platform.
type envOverrides struct {
	DBPath        string `envconfig:"LICENSE_DB_PATH"`
	ListenAddr    string `envconfig:"LICENSE_LISTEN_ADDR"`
	Port          string `envconfig:"PORT"`
	BotToken      string `envconfig:"BOT_TOKEN"`
	Token         string `envconfig:"TOKEN"`
	AdminUserID   *int64 `envconfig:"ADMIN_USER_ID"`
	AdminToken    string `envconfig:"LICENSE_ADMIN_TOKEN"`
	TelegramMode  string `envconfig:"LICENSE_TELEGRAM_MODE"`
	ExternalURL   string `envconfig:"RENDER_EXTERNAL_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	LogLevel      string `envconfig:"LICENSE_LOG_LEVEL"`
}

// Load loads configuration from a YAML file on top of Default()
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file (or defaults when path is
// empty) and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.DBPath != "" {
		cfg.Database.Path = env.DBPath
	}

	if env.Port != "" {
		cfg.Server.ListenAddr = ":" + env.Port
	}
	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}

	if env.Token != "" {
		cfg.Telegram.Token = env.Token
	}
	if env.BotToken != "" {
		cfg.Telegram.Token = env.BotToken
	}

	if env.AdminUserID != nil {
		cfg.Telegram.AdminUserID = *env.AdminUserID
	}

	if env.AdminToken != "" {
		cfg.Admin.Token = env.AdminToken
	}

	if env.TelegramMode != "" {
		cfg.Telegram.Mode = env.TelegramMode
	}

	if env.ExternalURL != "" {
		cfg.Telegram.WebhookURL = env.ExternalURL
	}

	if env.WebhookSecret != "" {
		cfg.Telegram.WebhookSecret = env.WebhookSecret
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}

	return nil
}

// LoadOffline loads configuration like LoadWithEnv for tools that only
// touch the database. The Telegram section is not required.
func LoadOffline(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Telegram.Mode = TelegramModeDisabled

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

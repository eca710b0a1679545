// Package config loads the daemon configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the daemon configuration.
type Config struct {
	// Database
	DatabasePath string `env:"DROVER_DB_PATH" envDefault:"./data/drover.db"`

	// Orchestrator
	PollInterval time.Duration `env:"DROVER_POLL_INTERVAL" envDefault:"15s"`
	StopGrace    time.Duration `env:"DROVER_STOP_GRACE" envDefault:"30s"`
	IdleDelay    time.Duration `env:"DROVER_IDLE_DELAY" envDefault:"5m"`

	// API
	ListenAddr string `env:"DROVER_LISTEN" envDefault:"127.0.0.1:7519"`

	// Target application package expected in the foreground.
	AppPackage string `env:"DROVER_APP_PACKAGE" envDefault:"com.instagram.android"`

	// Notifications (optional)
	TelegramToken  string `env:"DROVER_TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"DROVER_TELEGRAM_CHAT_ID"`

	// Logging
	LogLevel  string `env:"DROVER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DROVER_LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if the telegram broadcaster is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("DROVER_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.StopGrace <= 0 {
		return nil, fmt.Errorf("DROVER_STOP_GRACE must be positive, got %s", cfg.StopGrace)
	}

	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Mercatorio  MercatorioConfig  `mapstructure:"mercatorio"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Destination DestinationConfig `mapstructure:"destination"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// MercatorioConfig holds upstream game API and token refresh configuration
type MercatorioConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	TokenURL          string        `mapstructure:"token_url"`
	APIKey            string        `mapstructure:"api_key"`
	AuthPath          string        `mapstructure:"auth_path"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// SyncConfig holds orchestrator and collector behavior
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	BusyRetryDelay time.Duration `mapstructure:"busy_retry_delay"`
	Concurrency    int           `mapstructure:"concurrency"`
	Operations     []string      `mapstructure:"operations"`
	TownWhitelist  []string      `mapstructure:"town_whitelist"`
	HistorySource  string        `mapstructure:"history_source"` // cache or api
}

// DestinationConfig selects and configures the spreadsheet store
type DestinationConfig struct {
	Kind     string         `mapstructure:"kind"` // airtable or workbook
	Airtable AirtableConfig `mapstructure:"airtable"`
	Workbook WorkbookConfig `mapstructure:"workbook"`
}

// AirtableConfig holds Airtable API configuration
type AirtableConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	BaseName          string        `mapstructure:"base_name"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// WorkbookConfig holds local workbook configuration
type WorkbookConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds local persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Known operation names accepted in sync.operations.
const (
	OperationRegions = "regions"
	OperationTowns   = "towns"
	OperationMarket  = "market"
)

// Load reads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("MERCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case !errors.Is(statErr, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to stat config file: %w", statErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindEnv maps the well-known unprefixed variables onto their keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("destination.airtable.api_key", "MERCSYNC_DESTINATION_AIRTABLE_API_KEY", "AIRTABLE_API_KEY")
	_ = v.BindEnv("mercatorio.api_key", "MERCSYNC_MERCATORIO_API_KEY", "MERC_API_KEY")
	_ = v.BindEnv("telegram.bot_token", "MERCSYNC_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Mercatorio defaults
	v.SetDefault("mercatorio.base_url", "https://play.mercatorio.io/api")
	v.SetDefault("mercatorio.token_url", "https://securetoken.googleapis.com/v1/token")
	v.SetDefault("mercatorio.auth_path", "auth.json")
	v.SetDefault("mercatorio.timeout", "30s")
	v.SetDefault("mercatorio.requests_per_second", 10.0)
	v.SetDefault("mercatorio.burst", 10)

	// Sync defaults
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.busy_retry_delay", "60s")
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.operations", []string{OperationRegions, OperationTowns, OperationMarket})
	v.SetDefault("sync.town_whitelist", []string{})
	v.SetDefault("sync.history_source", "cache")

	// Destination defaults
	v.SetDefault("destination.kind", "airtable")
	v.SetDefault("destination.airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("destination.airtable.base_name", "Raw Data")
	v.SetDefault("destination.airtable.timeout", "30s")
	v.SetDefault("destination.airtable.requests_per_second", 5.0)
	v.SetDefault("destination.workbook.path", "mercsync.xlsx")

	// Storage defaults
	v.SetDefault("storage.db_path", "cache.db")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Mercatorio config
	if c.Mercatorio.BaseURL == "" {
		return fmt.Errorf("mercatorio.base_url is required")
	}
	if c.Mercatorio.TokenURL == "" {
		return fmt.Errorf("mercatorio.token_url is required")
	}
	if c.Mercatorio.AuthPath == "" {
		return fmt.Errorf("mercatorio.auth_path is required")
	}
	if c.Mercatorio.Timeout < time.Second {
		return fmt.Errorf("mercatorio.timeout must be at least 1 second")
	}
	if c.Mercatorio.RequestsPerSecond <= 0 {
		return fmt.Errorf("mercatorio.requests_per_second must be positive")
	}
	if c.Mercatorio.Burst < 1 {
		return fmt.Errorf("mercatorio.burst must be at least 1")
	}

	// Validate Sync config
	if c.Sync.Interval < time.Second {
		return fmt.Errorf("sync.interval must be at least 1 second")
	}
	if c.Sync.BusyRetryDelay < time.Second {
		return fmt.Errorf("sync.busy_retry_delay must be at least 1 second")
	}
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 10 {
		return fmt.Errorf("sync.concurrency must be between 1 and 10")
	}
	if len(c.Sync.Operations) == 0 {
		return fmt.Errorf("sync.operations must contain at least one operation")
	}
	validOperations := map[string]bool{OperationRegions: true, OperationTowns: true, OperationMarket: true}
	for _, op := range c.Sync.Operations {
		if !validOperations[op] {
			return fmt.Errorf("sync.operations: unknown operation %q (want regions, towns or market)", op)
		}
	}
	if c.Sync.HistorySource != "cache" && c.Sync.HistorySource != "api" {
		return fmt.Errorf("sync.history_source must be one of: cache, api")
	}

	// Validate Destination config
	switch c.Destination.Kind {
	case "airtable":
		if c.Destination.Airtable.APIKey == "" {
			return fmt.Errorf("destination.airtable.api_key is required (or set AIRTABLE_API_KEY)")
		}
		if c.Destination.Airtable.BaseName == "" {
			return fmt.Errorf("destination.airtable.base_name is required")
		}
		if c.Destination.Airtable.RequestsPerSecond <= 0 {
			return fmt.Errorf("destination.airtable.requests_per_second must be positive")
		}
	case "workbook":
		if c.Destination.Workbook.Path == "" {
			return fmt.Errorf("destination.workbook.path is required")
		}
	default:
		return fmt.Errorf("destination.kind must be one of: airtable, workbook")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

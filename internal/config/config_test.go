package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
mercatorio:
  auth_path: "./state/auth.json"
  timeout: 10s

sync:
  interval: 2m
  concurrency: 2
  operations:
    - towns
    - market
  town_whitelist:
    - Eindburg
    - Magdedorf

destination:
  kind: workbook
  workbook:
    path: "./data/raw.xlsx"

storage:
  db_path: "./data/cache.db"

logging:
  level: "debug"
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.Interval != 2*time.Minute {
		t.Errorf("Unexpected sync interval: %v", cfg.Sync.Interval)
	}
	if cfg.Sync.Concurrency != 2 {
		t.Errorf("Unexpected concurrency: %d", cfg.Sync.Concurrency)
	}
	if len(cfg.Sync.Operations) != 2 {
		t.Errorf("Expected 2 operations, got %d", len(cfg.Sync.Operations))
	}
	if len(cfg.Sync.TownWhitelist) != 2 {
		t.Errorf("Expected 2 whitelisted towns, got %d", len(cfg.Sync.TownWhitelist))
	}
	if cfg.Mercatorio.Timeout != 10*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.Mercatorio.Timeout)
	}
	// Defaults still apply for keys missing from the file
	if cfg.Mercatorio.BaseURL != "https://play.mercatorio.io/api" {
		t.Errorf("Unexpected base url default: %s", cfg.Mercatorio.BaseURL)
	}
	if cfg.Sync.HistorySource != "cache" {
		t.Errorf("Unexpected history source default: %s", cfg.Sync.HistorySource)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "pat-from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Destination.Kind != "airtable" {
		t.Errorf("Unexpected destination kind: %s", cfg.Destination.Kind)
	}
	if cfg.Destination.Airtable.APIKey != "pat-from-env" {
		t.Errorf("AIRTABLE_API_KEY not bound, got %q", cfg.Destination.Airtable.APIKey)
	}
	if cfg.Destination.Airtable.BaseName != "Raw Data" {
		t.Errorf("Unexpected base name: %s", cfg.Destination.Airtable.BaseName)
	}
	if len(cfg.Sync.Operations) != 3 {
		t.Errorf("Expected 3 default operations, got %v", cfg.Sync.Operations)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadPrefixedEnvOverride(t *testing.T) {
	t.Setenv("MERCSYNC_SYNC_CONCURRENCY", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.Concurrency != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Sync.Concurrency)
	}
}

func validConfig() *Config {
	return &Config{
		Mercatorio: MercatorioConfig{
			BaseURL:           "https://play.mercatorio.io/api",
			TokenURL:          "https://securetoken.googleapis.com/v1/token",
			AuthPath:          "auth.json",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Sync: SyncConfig{
			Interval:       time.Minute,
			BusyRetryDelay: time.Minute,
			Concurrency:    4,
			Operations:     []string{OperationRegions, OperationTowns, OperationMarket},
			HistorySource:  "cache",
		},
		Destination: DestinationConfig{
			Kind: "airtable",
			Airtable: AirtableConfig{
				APIKey:            "pat",
				BaseName:          "Raw Data",
				RequestsPerSecond: 5,
			},
		},
		Storage: StorageConfig{DBPath: "cache.db"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing base url", mutate: func(c *Config) { c.Mercatorio.BaseURL = "" }, wantErr: true},
		{name: "concurrency zero", mutate: func(c *Config) { c.Sync.Concurrency = 0 }, wantErr: true},
		{name: "concurrency too high", mutate: func(c *Config) { c.Sync.Concurrency = 11 }, wantErr: true},
		{name: "unknown operation", mutate: func(c *Config) { c.Sync.Operations = []string{"markets"} }, wantErr: true},
		{name: "no operations", mutate: func(c *Config) { c.Sync.Operations = nil }, wantErr: true},
		{name: "bad history source", mutate: func(c *Config) { c.Sync.HistorySource = "live" }, wantErr: true},
		{name: "missing airtable key", mutate: func(c *Config) { c.Destination.Airtable.APIKey = "" }, wantErr: true},
		{name: "unknown destination", mutate: func(c *Config) { c.Destination.Kind = "sheets" }, wantErr: true},
		{
			name: "workbook without airtable key",
			mutate: func(c *Config) {
				c.Destination.Kind = "workbook"
				c.Destination.Airtable.APIKey = ""
				c.Destination.Workbook.Path = "out.xlsx"
			},
			wantErr: false,
		},
		{name: "missing telegram token when enabled", mutate: func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "short interval", mutate: func(c *Config) { c.Sync.Interval = time.Millisecond }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

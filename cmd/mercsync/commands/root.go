package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/mercsync/internal/config"
	"github.com/rewired-gh/mercsync/internal/logger"
)

var (
	configPath string
	authPath   string
	cachePath  string
	debug      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mercsync",
	Short: "mercsync mirrors Mercatorio world and market data into a spreadsheet, once per game turn.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		logger.Debug("Configuration loaded from %s", configPath)
		return nil
	},
	SilenceUsage: true,
	RunE:         runSync,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	flags.StringVar(&authPath, "auth-path", "", "Override mercatorio.auth_path")
	flags.StringVar(&cachePath, "cache-path", "", "Override storage.db_path")
	flags.BoolVar(&debug, "debug", false, "Force debug logging")
}

func applyFlags(c *config.Config) {
	if authPath != "" {
		c.Mercatorio.AuthPath = authPath
	}
	if cachePath != "" {
		c.Storage.DBPath = cachePath
	}
	if debug {
		c.Logging.Level = "debug"
	}
}

// ExecuteContext runs the CLI and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("%v", err)
	}
}

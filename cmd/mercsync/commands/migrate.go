package commands

import (
	"github.com/spf13/cobra"

	"github.com/rewired-gh/mercsync/internal/logger"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the destination tables that do not exist yet.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := openDestination(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := dest.Close(); err != nil {
				logger.Error("Failed to close destination: %v", err)
			}
		}()

		if err := dest.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("Destination schema is up to date")
		return nil
	},
}

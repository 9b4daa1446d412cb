package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mercsync/internal/auth"
	"github.com/rewired-gh/mercsync/internal/logger"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchanges the stored refresh token for a new credential.",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := auth.LoadState(cfg.Mercatorio.AuthPath)
		if err != nil {
			return err
		}
		refresher := auth.NewTokenRefresher(cfg.Mercatorio.TokenURL, cfg.Mercatorio.APIKey, cfg.Mercatorio.Timeout)
		next, err := refresher.Refresh(cmd.Context(), state.RefreshToken)
		if err != nil {
			return err
		}
		if err := next.Save(cfg.Mercatorio.AuthPath); err != nil {
			return err
		}
		logger.Info("Credential refreshed, expires at %s", next.ExpiresAt().Format(time.RFC3339))
		return nil
	},
}

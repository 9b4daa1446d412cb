package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mercsync/internal/logger"
)

var once bool

func init() {
	runCmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--once]",
	Short: "Polls the game and mirrors each new turn (default command).",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	if a.telegram != nil {
		a.telegram.ListenForCommands(ctx)
	}

	if once {
		outcome, err := a.syncer.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("Pass finished: %s", outcome)
		return nil
	}

	if err := a.syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

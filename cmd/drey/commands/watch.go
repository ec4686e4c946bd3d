package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [RUN_ID]",
	Short: "Tail run lifecycle events",
	Long: `Stream run lifecycle events from the archive's Pub/Sub channel as they
happen: stage completions, gates entered and resolved, checkpoints, and
terminal transitions.

With a RUN_ID argument only that run's events are shown. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := archiveClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	}

	printer.Step("Watching run events for instance %q (Ctrl-C to stop)\n", cfg.Instance)
	err = watch.Tail(ctx, archive, os.Stdout, runID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutorstack/docproc/internal/core/ports/driving"
	"github.com/tutorstack/docproc/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and ingest dropped files",
	Long: `Watches the given directory (or watch.dir from the config) and
enqueues every new or rewritten file for background processing.
Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureServices(ctx); err != nil {
		return err
	}

	dir := cfg.Watch.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no directory given and watch.dir is not configured")
	}

	w := watcher.New(dir, func(ctx context.Context, path string) error {
		return ingestFile(ctx, cmd, path, driving.ProcessOptions{}, true, 0, cfg.Watch.OwnerID)
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Close()

	cmd.Printf("watching %s, press Ctrl+C to stop\n", dir)
	<-ctx.Done()
	return nil
}

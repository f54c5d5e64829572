package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driving/watch"
	"github.com/custodia-labs/handbook-rag/internal/loaders/filesystem"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep the index in step with a handbook directory",
	Long: `Ingests the directory, then watches it and re-ingests documents as
they are created, changed or removed. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "wait for changes to settle before re-ingesting")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := cmd.Context()
	dir := args[0]
	loader := filesystem.New(filesystem.WithFilter(supportsType))
	defer loader.Close()

	raws, err := loadPaths(ctx, loader, []string{dir})
	if err != nil {
		return err
	}
	report, err := ingestService.IngestRaw(ctx, raws)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	watcher, err := watch.New(loader, ingestService, indexService, watch.Config{
		Debounce: watchDebounce,
		OnBatch: func(r watch.Result) {
			if r.Report != nil {
				printReport(cmd, r.Report)
			}
			for _, id := range r.Deleted {
				cmd.Printf("Removed %s\n", id)
			}
		},
	})
	if err != nil {
		return err
	}

	cmd.Printf("Watching %s for changes (Ctrl+C to stop)...\n", dir)
	return watcher.Run(ctx, dir)
}

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/loaders/filesystem"
)

var (
	ingestPrune bool
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Add handbook documents to the index",
	Long: `Reads documents from files or directories and adds them to the index.

Supported formats: HTML, Markdown, plain text, PDF, and JSONL exports with
one {"id", "content", "metadata"} record per line. Documents whose content
has not changed since the last run are skipped.

Document IDs are paths relative to the given directory, so ingest the same
directory to update documents in place. Use --prune to remove documents
that no longer exist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestPrune, "prune", false, "remove stored documents not found in the given paths")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if ingestPrune && documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := cmd.Context()
	loader := filesystem.New(filesystem.WithFilter(supportsType))
	defer loader.Close()

	raws, err := loadPaths(ctx, loader, args)
	if err != nil {
		return err
	}

	report, err := ingestService.IngestRaw(ctx, raws)
	if report != nil {
		if ingestJSON {
			if jsonErr := outputJSON(cmd, report); jsonErr != nil {
				return jsonErr
			}
		} else {
			printReport(cmd, report)
		}
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestPrune {
		return prune(cmd, raws)
	}
	return nil
}

// loadPaths reads every document below paths.
func loadPaths(ctx context.Context, loader *filesystem.Loader, paths []string) ([]domain.RawDocument, error) {
	var raws []domain.RawDocument
	for _, path := range paths {
		err := loader.Load(ctx, path, func(raw *domain.RawDocument) error {
			raws = append(raws, *raw)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return raws, nil
}

// prune deletes stored documents that were not loaded this run.
func prune(cmd *cobra.Command, loaded []domain.RawDocument) error {
	seen := make(map[string]bool, len(loaded))
	for i := range loaded {
		seen[loaded[i].ID] = true
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	removed := 0
	for i := range docs {
		if seen[docs[i].ID] {
			continue
		}
		if err := ingestService.Delete(cmd.Context(), docs[i].ID); err != nil {
			return fmt.Errorf("failed to prune %s: %w", docs[i].ID, err)
		}
		removed++
	}
	cmd.Printf("Pruned %d documents.\n", removed)
	return nil
}

func printReport(cmd *cobra.Command, report *driving.IngestReport) {
	cmd.Printf("Processed %d documents: %d indexed, %d unchanged, %d failed (%d chunks)\n",
		report.Documents, report.Indexed, report.Unchanged, len(report.Failed), report.Chunks)
	for _, id := range report.Failed {
		cmd.Printf("  failed: %s\n", id)
	}
	for _, w := range report.Warnings {
		cmd.Printf("  warning: %v\n", w)
	}
}

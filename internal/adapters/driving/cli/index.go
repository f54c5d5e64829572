package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// indexCmd and its children skip loading the saved index: they must work
// after the embedding model or dimension changed.
var indexCmd = &cobra.Command{
	Use:         "index",
	Short:       "Inspect and rebuild the vector index",
	Annotations: map[string]string{annotationBootstrap: bootstrapIndexAdmin},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-embed every stored chunk",
	Long: `Re-embeds every stored chunk with the configured embedding model and
replaces the index in one step. Queries keep seeing the old index until
the new one is complete.

Run this after changing the embedding provider, model or dimensions.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	stats, err := indexService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get index stats: %w", err)
	}

	cmd.Println("[Index]")
	cmd.Printf("  Model:      %s\n", stats.Info.ModelVersion)
	cmd.Printf("  Dimension:  %d\n", stats.Info.Dimension)
	cmd.Printf("  Entries:    %d\n", stats.Info.Size)
	cmd.Printf("  Documents:  %d\n", stats.Documents)
	cmd.Printf("  Embedder:   %s (%d dimensions)\n", stats.Embedder, stats.EmbedderDimension)

	var mismatch string
	switch {
	case stats.Info.ModelVersion != "" && stats.Info.ModelVersion != stats.Embedder:
		mismatch = "the index was built with another model."
	case stats.Info.Dimension != 0 && stats.EmbedderDimension != 0 && stats.Info.Dimension != stats.EmbedderDimension:
		mismatch = "the index has a different number of dimensions than the embedder."
	}
	if mismatch != "" {
		cmd.Println()
		cmd.Println("Warning: " + mismatch)
		cmd.Println(rebuildHint)
	}
	return nil
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	cmd.Println("Rebuilding index...")
	info, err := indexService.Rebuild(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	cmd.Printf("Index rebuilt: %d entries, model %s, %d dimensions.\n",
		info.Size, info.ModelVersion, info.Dimension)
	return nil
}

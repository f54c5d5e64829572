package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

var (
	queryTopK     int
	querySections []string
	queryMinScore float64
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Find handbook excerpts for a question",
	Long: `Embeds the question and returns the most relevant handbook excerpts.
Excerpts below the similarity threshold are dropped, so an unrelated
question returns no results.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of excerpts (0 = from settings)")
	queryCmd.Flags().StringSliceVar(&querySections, "section", nil, "only return excerpts from these sections")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "minimum similarity (default from settings)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	result, err := retrievalService.Retrieve(cmd.Context(), args[0], retrieveOptions(cmd))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputJSON(cmd, result)
	}

	if result.Empty() {
		cmd.Println("No relevant excerpts found.")
		return nil
	}
	writeExcerpts(cmd.OutOrStdout(), result, true)
	return nil
}

// retrieveOptions builds options from the query flags. Unset flags keep
// the configured defaults.
func retrieveOptions(cmd *cobra.Command) domain.RetrieveOptions {
	opts := domain.RetrieveOptions{TopK: queryTopK}
	if len(querySections) > 0 {
		opts.Filter = &domain.Filter{Sections: querySections}
	}
	if f := cmd.Flags().Lookup("min-score"); f != nil && f.Changed {
		minScore := queryMinScore
		opts.MinScore = &minScore
	}
	return opts
}

// writeExcerpts prints ranked excerpts, with their text when withContent is set.
func writeExcerpts(w io.Writer, result *domain.RetrievalResult, withContent bool) {
	st := stylesFor(w)
	for i := range result.Chunks {
		c := &result.Chunks[i]
		title := c.Title
		if title == "" {
			title = c.DocumentID
		}

		// Format: [N] Title (score)
		fmt.Fprintf(w, "  %s %s %s\n",
			st.Rank.Render(fmt.Sprintf("[%d]", i+1)),
			st.Title.Render(title),
			st.Score.Render(fmt.Sprintf("(%.2f)", c.Score)))

		source := c.DocumentID
		if c.URI != "" {
			source = c.URI
		}
		if c.Section != "" {
			source += " > " + c.Section
		}
		fmt.Fprintf(w, "      %s\n", st.Source.Render(source))

		if withContent {
			for _, line := range strings.Split(strings.TrimSpace(c.Content), "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

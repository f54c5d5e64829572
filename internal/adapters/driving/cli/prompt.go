package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var promptMaxChars int

var promptCmd = &cobra.Command{
	Use:   "prompt [question]",
	Short: "Build a grounded prompt for a question",
	Long: `Retrieves the relevant handbook excerpts and prints the prompt a
language model should answer from. The prompt never exceeds the character
budget; lower ranked excerpts are dropped first.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of excerpts (0 = from settings)")
	promptCmd.Flags().IntVar(&promptMaxChars, "max-chars", 0, "prompt character budget (0 = from settings)")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	if retrievalService == nil || promptService == nil {
		return errors.New("prompt service not configured")
	}

	query := args[0]
	result, err := retrievalService.Retrieve(cmd.Context(), query, retrieveOptions(cmd))
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	prompt, err := promptService.Assemble(query, result, promptMaxChars)
	if err != nil {
		return fmt.Errorf("failed to assemble prompt: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}

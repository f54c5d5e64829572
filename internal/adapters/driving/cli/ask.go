package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the handbook",
	Long: `Retrieves the relevant handbook excerpts and asks the configured
generator to answer from them. The sources used are listed below the answer.

Without a generator (settings generation.provider) the assembled prompt is
printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum number of excerpts (0 = from settings)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	answer, err := answerService.Ask(cmd.Context(), args[0], retrieveOptions(cmd))
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputJSON(cmd, answer)
	}

	outputAnswer(cmd, answer)
	return nil
}

func outputAnswer(cmd *cobra.Command, answer *domain.Answer) {
	w := cmd.OutOrStdout()
	st := stylesFor(w)

	if answer.Text == "" {
		fmt.Fprintln(w, st.Notice.Render("No generator configured; the assembled prompt follows."))
		fmt.Fprintln(w)
		fmt.Fprintln(w, answer.Prompt)
		return
	}

	fmt.Fprintln(w, answer.Text)
	fmt.Fprintln(w)
	if answer.Insufficient {
		fmt.Fprintln(w, st.Notice.Render("The handbook has no excerpt relevant to this question."))
		return
	}
	fmt.Fprintln(w, "Sources:")
	writeExcerpts(w, answer.Result, false)
}

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/services"
)

const rebuildHint = "Run 'handbook-rag index rebuild' to re-embed the handbook."

var errNoSettings = errors.New("settings service not configured")

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change configuration",
	Long: `Show or change the chunking, embedding, index, retrieval, cache and
generation settings kept in config.toml.`,
	Annotations: map[string]string{annotationBootstrap: bootstrapSettings},
	RunE:        runSettingsShow,
}

var (
	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print every setting, grouped by table",
		RunE:  runSettingsShow,
	}
	settingsPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print where config.toml lives",
		RunE:  runSettingsPath,
	}
	settingsSetCmd = &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Change one setting",
		Long: `Change one setting by its dotted key:

  handbook-rag settings set retrieval.top_k 8
  handbook-rag settings set retrieval.query_timeout 5s

Leave the value off for an API key, password or DSN to type it without echo.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSettingsSet,
	}
	settingsEmbeddingCmd = &cobra.Command{
		Use:   "embedding",
		Short: "Pick the embedding provider step by step",
		Long: `Pick the embedding provider, model and key, then probe it.

A different provider, model or dimension needs 'handbook-rag index rebuild'.`,
		RunE: func(cmd *cobra.Command, _ []string) error { return runWizard(cmd, embeddingWizard) },
	}
	settingsGeneratorCmd = &cobra.Command{
		Use:   "generator",
		Short: "Pick the answer generator step by step",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runWizard(cmd, generatorWizard) },
	}
)

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsPathCmd, settingsSetCmd, settingsEmbeddingCmd, settingsGeneratorCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNoSettings
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	table := ""
	for _, key := range services.SettingKeys() {
		value, _ := services.SettingValue(settings, key)
		group, name, _ := strings.Cut(key, ".")
		if group != table {
			cmd.Printf("\n[%s]\n", group)
			table = group
		}
		cmd.Printf("  %s: %s\n", name, displayValue(key, value))
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'handbook-rag settings set' to fix configuration issues.")
		return nil
	}
	cmd.Println("Configuration is valid.")
	return nil
}

func displayValue(key, value string) string {
	switch {
	case value == "":
		return "(not set)"
	case isSecret(key):
		return maskAPIKey(value)
	default:
		return value
	}
}

func runSettingsPath(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNoSettings
	}
	fmt.Fprintln(cmd.OutOrStdout(), settingsService.Path())
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNoSettings
	}

	key, secret := args[0], isSecret(args[0])
	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case secret:
		cmd.Printf("Enter %s: ", key)
		value = readSecret(cmd, bufio.NewReader(cmd.InOrStdin()))
		cmd.Println()
	default:
		return fmt.Errorf("a value is required for %s", key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if secret {
		cmd.Printf("Set %s.\n", key)
	} else {
		cmd.Printf("Set %s = %s\n", key, value)
	}
	if strings.HasPrefix(key, "embedding.") {
		cmd.Println(rebuildHint)
	}
	return nil
}

// wizard describes one interactive provider choice. The embedding and
// generator flows differ only in these fields.
type wizard struct {
	title     string
	table     string // settings table the keys live in
	choices   []wizardChoice
	validate  func() error
	done      string // printed after a successful probe
	afterDone string
}

type wizardChoice struct {
	provider     string
	description  string
	defaultModel string
	needsKey     bool
	disables     bool
}

var embeddingWizard = func() wizard {
	w := wizard{
		title:     "Select Embedding Provider",
		table:     "embedding",
		validate:  func() error { return settingsService.ValidateEmbeddingConfig() },
		done:      "Embedding provider configured",
		afterDone: rebuildHint,
	}
	models := domain.DefaultEmbeddingModels()
	for _, p := range domain.AllEmbeddingProviders() {
		w.choices = append(w.choices, wizardChoice{
			provider:     string(p),
			description:  p.Description(),
			defaultModel: models[p],
			needsKey:     p == domain.EmbeddingProviderOpenAI,
		})
	}
	return w
}()

var generatorWizard = func() wizard {
	w := wizard{
		title:    "Select Answer Generator",
		table:    "generation",
		validate: func() error { return settingsService.ValidateGeneratorConfig() },
		done:     "Answer generator configured",
	}
	models := domain.DefaultGeneratorModels()
	for _, p := range domain.AllGeneratorProviders() {
		w.choices = append(w.choices, wizardChoice{
			provider:     string(p),
			description:  p.Description(),
			defaultModel: models[p],
			needsKey:     p == domain.GeneratorProviderOpenAI,
			disables:     p == domain.GeneratorProviderNone,
		})
	}
	return w
}()

func runWizard(cmd *cobra.Command, w wizard) error {
	if settingsService == nil {
		return errNoSettings
	}
	in := bufio.NewReader(cmd.InOrStdin())

	cmd.Println(w.title)
	for i, c := range w.choices {
		cmd.Printf("  %d. %s\n", i+1, c.description)
	}
	cmd.Print("\nEnter choice [1]: ")
	choice := w.choices[parseChoice(readLine(in), len(w.choices), 1)-1]

	if choice.disables {
		if err := settingsService.Set(w.table+".provider", ""); err != nil {
			return fmt.Errorf("failed to disable %s: %w", w.table, err)
		}
		cmd.Println("Answer generation disabled; ask prints the assembled prompt.")
		return nil
	}

	cmd.Printf("Enter model name [%s]: ", choice.defaultModel)
	model := readLine(in)
	if model == "" {
		model = choice.defaultModel
	}

	var key string
	if choice.needsKey {
		cmd.Print("Enter API key: ")
		key = readSecret(cmd, in)
		cmd.Println()
		if key == "" {
			return errors.New("API key is required for this provider")
		}
	}

	// provider goes first so its default model is filled before ours lands
	if err := setAll(
		w.table+".provider", choice.provider,
		w.table+".model", model,
		w.table+".api_key", key,
	); err != nil {
		return fmt.Errorf("failed to configure %s: %w", w.table, err)
	}

	cmd.Print("Validating configuration... ")
	if err := w.validate(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", w.table, err)
	}
	cmd.Println("OK")

	cmd.Printf("%s: %s (%s)\n", w.done, choice.description, model)
	if w.afterDone != "" {
		cmd.Println(w.afterDone)
	}
	return nil
}

// setAll applies key, value pairs in order. An empty secret is skipped
// so a stored key survives.
func setAll(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		key, value := pairs[i], pairs[i+1]
		if value == "" && isSecret(key) {
			continue
		}
		if err := settingsService.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func isSecret(key string) bool {
	for _, suffix := range []string{"api_key", "password", "dsn"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n') //nolint:errcheck // EOF reads as an empty answer
	return strings.TrimSpace(line)
}

// parseChoice turns a 1-based menu answer into an index, falling back to
// def for blank or out-of-range input.
func parseChoice(input string, maxVal, def int) int {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > maxVal {
		return def
	}
	return n
}

// readSecret reads without echo when the command's input is a terminal
// and falls back to a plain line from in otherwise.
func readSecret(cmd *cobra.Command, in *bufio.Reader) string {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if b, err := term.ReadPassword(int(f.Fd())); err == nil {
			return string(b)
		}
	}
	return readLine(in)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

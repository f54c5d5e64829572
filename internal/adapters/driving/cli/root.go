// Package cli implements the handbook-rag command line interface.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Annotation values controlling what a command needs before it runs.
const (
	annotationBootstrap = "bootstrap"
	bootstrapNone       = "none"
	bootstrapSettings   = "settings"
	bootstrapIndexAdmin = "index-admin"
)

// Options are the global flags handed to the bootstrap function.
type Options struct {
	ConfigDir string
	DataDir   string

	// Engine is false for commands that only need settings.
	Engine bool

	// IndexAdmin opens the engine without loading the saved index, for
	// commands that inspect or replace an index built with another model.
	IndexAdmin bool
}

// Services holds the driving ports used by the commands.
type Services struct {
	Retrieval driving.RetrievalService
	Prompt    driving.PromptService
	Answer    driving.AnswerService
	Document  driving.DocumentService
	Ingest    driving.IngestService
	Index     driving.IndexService
	Settings  driving.SettingsService

	// Generates is true when Answer can produce answer text.
	Generates bool

	// Supports filters loaded files by MIME type. Nil accepts everything.
	Supports func(mimeType string) bool

	// Close releases the services after the command. Optional.
	Close func(ctx context.Context) error
}

// Bootstrap builds the services for a command.
type Bootstrap func(ctx context.Context, opts Options) (*Services, error)

var (
	version = "dev"

	bootstrap Bootstrap
	closer    func(ctx context.Context) error

	retrievalService driving.RetrievalService
	promptService    driving.PromptService
	answerService    driving.AnswerService
	documentService  driving.DocumentService
	ingestService    driving.IngestService
	indexService     driving.IndexService
	settingsService  driving.SettingsService
	generates        bool
	supportsType     func(mimeType string) bool
)

var (
	configDir string
	dataDir   string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "handbook-rag",
	Short: "Answer questions from the student handbook",
	Long: `handbook-rag turns the student handbook into a searchable index and
answers questions with the most relevant excerpts.

Ingest the handbook once, then query it, build prompts for a language
model, or serve it to AI assistants over MCP.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupServices,
	PersistentPostRunE: closeServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default ~/.handbook-rag)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.handbook-rag/data)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline progress")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap sets the function that builds services before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if closer != nil {
		c := closer
		closer = nil
		err = errors.Join(err, c(context.Background()))
	}
	return err
}

func setupServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	level := bootstrapLevel(cmd)
	if level == bootstrapNone || bootstrap == nil {
		return nil
	}

	svc, err := bootstrap(cmd.Context(), Options{
		ConfigDir:  configDir,
		DataDir:    dataDir,
		Engine:     level != bootstrapSettings,
		IndexAdmin: level == bootstrapIndexAdmin,
	})
	if err != nil {
		return err
	}
	setServices(svc)
	return nil
}

func closeServices(cmd *cobra.Command, _ []string) error {
	if closer == nil {
		return nil
	}
	c := closer
	closer = nil
	return c(context.WithoutCancel(cmd.Context()))
}

func setServices(svc *Services) {
	retrievalService = svc.Retrieval
	promptService = svc.Prompt
	answerService = svc.Answer
	documentService = svc.Document
	ingestService = svc.Ingest
	indexService = svc.Index
	settingsService = svc.Settings
	generates = svc.Generates
	supportsType = svc.Supports
	closer = svc.Close
}

// bootstrapLevel returns the nearest bootstrap annotation of cmd or its
// parents. Help and completion commands need nothing.
func bootstrapLevel(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return bootstrapNone
		}
		if level, ok := c.Annotations[annotationBootstrap]; ok {
			return level
		}
	}
	return ""
}

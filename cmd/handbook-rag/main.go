// Command handbook-rag answers questions from a student handbook.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/handbook-rag/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap opens the settings alone or the whole engine.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	appOpts := app.Options{ConfigDir: opts.ConfigDir, DataDir: opts.DataDir, SkipIndexLoad: opts.IndexAdmin}

	if !opts.Engine {
		settings, err := app.OpenSettings(appOpts)
		if err != nil {
			return nil, err
		}
		return &cli.Services{Settings: settings}, nil
	}

	a, err := app.Open(ctx, appOpts)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Retrieval: a.Retrieval,
		Prompt:    a.Prompt,
		Answer:    a.Answer,
		Document:  a.Document,
		Ingest:    a.Ingest,
		Index:     a.Index,
		Settings:  a.Settings,
		Generates: a.Generates,
		Supports:  a.Supports,
		Close:     a.Close,
	}, nil
}

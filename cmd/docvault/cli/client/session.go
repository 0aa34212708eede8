package client

import (
	"context"
	"fmt"
	"os"

	"github.com/mwantia/docvault/internal/agent"
	"github.com/mwantia/docvault/pkg/log"
	"github.com/mwantia/docvault/pkg/vault"
	"github.com/spf13/cobra"

	config "github.com/mwantia/docvault/internal/config/server"
)

// withRepository opens the store for a single command. Temporaries left by
// dead processes are swept before fn runs; this command's own are erased
// when the store closes.
func withRepository(cmd *cobra.Command, fn func(ctx context.Context, repo *vault.Repository) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// stdout is reserved for command output
	logger := log.NewLoggerServiceWithWriter("docvault", cfg.Log, os.Stderr)

	ctx := cmd.Context()
	services, err := agent.NewServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	services.Repository.CleanupStaleTempFiles(ctx)

	return fn(ctx, services.Repository)
}

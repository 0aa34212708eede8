package server

import (
	"context"
	"fmt"

	"github.com/mwantia/docvault/internal/agent"
	"github.com/spf13/cobra"

	config "github.com/mwantia/docvault/internal/config/server"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the DocVault agent",
		Long: `Start the DocVault agent.

The agent sweeps decrypted temporaries and orphaned ciphertext at startup
and keeps sweeping the temporary area until it is interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			return agent.NewAgent(cfg).Serve(context.Background())
		},
	}

	return cmd
}

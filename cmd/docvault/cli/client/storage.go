package client

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/mwantia/docvault/pkg/vault"
	"github.com/spf13/cobra"
)

func NewStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and maintain the storage area",
	}

	cmd.AddCommand(newStorageInfoCommand())
	cmd.AddCommand(newStorageCleanupCommand())
	cmd.AddCommand(newStorageReconcileCommand())

	return cmd
}

func newStorageInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show document count and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				info, err := repo.GetStorageInfo(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s\t%d\n", headerColor.Sprint("Documents"), info.DocumentCount)
				fmt.Fprintf(tw, "%s\t%s\n", headerColor.Sprint("Pages"), humanSize(info.DocumentsSizeBytes))
				fmt.Fprintf(tw, "%s\t%s\n", headerColor.Sprint("Thumbnails"), humanSize(info.ThumbnailsSizeBytes))
				fmt.Fprintf(tw, "%s\t%s\n", headerColor.Sprint("Temporary"), humanSize(info.TempSizeBytes))
				return tw.Flush()
			})
		},
	}
}

func newStorageCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Erase decrypted temporaries left by exited processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				result := repo.CleanupStaleTempFiles(ctx)
				successColor.Fprintf(cmd.OutOrStdout(), "Erased %d temporary file(s)\n", result.Deleted)
				if result.Failed > 0 {
					return fmt.Errorf("%d temporary file(s) could not be erased", result.Failed)
				}
				return nil
			})
		},
	}
}

func newStorageReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove ciphertext that no document references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				report, err := repo.SweepOrphans(ctx)
				if err != nil {
					return err
				}
				for _, path := range report.Deleted {
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Removed %d orphan(s), skipped %d recent file(s)\n",
					len(report.Deleted), report.Skipped)
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d orphan(s) could not be removed", len(report.Failed))
				}
				return nil
			})
		},
	}
}

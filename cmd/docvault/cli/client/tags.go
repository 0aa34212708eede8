package client

import (
	"context"

	"github.com/mwantia/docvault/pkg/vault"
	"github.com/spf13/cobra"
)

func NewTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Manage tags",
	}

	cmd.AddCommand(newTagsAddCommand())
	cmd.AddCommand(newTagsListCommand())
	cmd.AddCommand(newTagsRemoveCommand())
	cmd.AddCommand(newTagsRenameCommand())
	cmd.AddCommand(newTagsDocsCommand())

	return cmd
}

func newTagsAddCommand() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				tag, err := repo.CreateTag(ctx, args[0], color)
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Created tag %s (%s)\n", tag.Name, tag.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "display color")

	return cmd
}

func newTagsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List tags",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				tags, err := repo.ListTags(ctx)
				if err != nil {
					return err
				}
				printTags(cmd.OutOrStdout(), tags)
				return nil
			})
		},
	}
}

func newTagsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a tag; tagged documents are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				return repo.DeleteTag(ctx, args[0])
			})
		},
	}
}

func newTagsRenameCommand() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename or recolor a tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var newColor *string
			if cmd.Flags().Changed("color") {
				newColor = &color
			}
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				_, err := repo.UpdateTag(ctx, args[0], &args[1], newColor)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "new display color")

	return cmd
}

func newTagsDocsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "docs <id>",
		Short: "List documents carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				docs, err := repo.GetDocumentsByTag(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				printDocuments(cmd.OutOrStdout(), docs)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of documents")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of documents to skip")

	return cmd
}

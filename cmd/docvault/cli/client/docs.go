package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mwantia/docvault/pkg/vault"
	"github.com/spf13/cobra"
)

func NewDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"doc"},
		Short:   "Manage documents",
		Long:    "Add, list, inspect, export and remove encrypted documents.",
	}

	cmd.AddCommand(newDocsAddCommand())
	cmd.AddCommand(newDocsListCommand())
	cmd.AddCommand(newDocsShowCommand())
	cmd.AddCommand(newDocsSearchCommand())
	cmd.AddCommand(newDocsExportCommand())
	cmd.AddCommand(newDocsRemoveCommand())
	cmd.AddCommand(newDocsOcrCommand())
	cmd.AddCommand(newDocsFavoriteCommand())
	cmd.AddCommand(newDocsTitleCommand())
	cmd.AddCommand(newDocsMoveCommand())
	cmd.AddCommand(newDocsReplacePageCommand())
	cmd.AddCommand(newDocsAppendCommand())
	cmd.AddCommand(newDocsThumbnailCommand())
	cmd.AddCommand(newDocsTagCommand())

	return cmd
}

func newDocsAddCommand() *cobra.Command {
	var (
		c           vault.CreateCommand
		description string
		folder      string
		ocrText     string
	)

	cmd := &cobra.Command{
		Use:   "add <page>...",
		Short: "Add a document",
		Long:  "Encrypt one or more page files into a new document. The plaintext inputs are left untouched.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.PagePaths = args
			if cmd.Flags().Changed("description") {
				c.Description = &description
			}
			if folder != "" {
				c.FolderID = &folder
			}
			if ocrText != "" {
				c.OcrText = &ocrText
				if c.OcrStatus == "" {
					c.OcrStatus = vault.OcrCompleted
				}
			}

			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.CreateDocumentWithPages(ctx, c)
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Added %s (%d page(s), %s)\n",
					doc.ID, doc.PageCount(), humanSize(doc.SizeBytes))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&c.Title, "title", "t", "", "document title (default is the first file name)")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	cmd.Flags().StringVar(&c.OriginalFilename, "filename", "", "original file name to record")
	cmd.Flags().StringVar(&c.MimeType, "mime", "", "MIME type of the pages (default is derived from the extension)")
	cmd.Flags().StringVar(&folder, "folder", "", "folder id")
	cmd.Flags().BoolVar(&c.IsFavorite, "favorite", false, "mark as favorite")
	cmd.Flags().StringSliceVar(&c.TagIDs, "tag", nil, "tag id to attach (repeatable)")
	cmd.Flags().StringVar(&c.ThumbnailPath, "thumbnail", "", "plaintext thumbnail image")
	cmd.Flags().StringVar(&ocrText, "ocr-text", "", "recognized text of the document")
	cmd.Flags().Var((*ocrStatusValue)(&c.OcrStatus), "ocr-status", "ocr status (pending, processing, completed, failed)")

	return cmd
}

func newDocsListCommand() *cobra.Command {
	var (
		opts   vault.ListOptions
		folder string
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("folder") {
				opts.FolderID = &folder
			}
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				docs, err := repo.ListDocuments(ctx, opts)
				if err != nil {
					return err
				}
				printDocuments(cmd.OutOrStdout(), docs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "only documents in this folder")
	cmd.Flags().BoolVar(&opts.FavoritesOnly, "favorites", false, "only favorites")
	cmd.Flags().StringVar(&opts.TagID, "tag", "", "only documents carrying this tag id")
	cmd.Flags().StringVar(&opts.OcrStatus, "ocr-status", "", "only documents with this ocr status")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum number of documents")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of documents to skip")

	return cmd
}

func newDocsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show document details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}
				tags, err := repo.GetDocumentTags(ctx, doc.ID)
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc, tags)
				return nil
			})
		},
	}
}

func newDocsSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, descriptions and recognized text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				docs, err := repo.SearchDocuments(ctx, args[0], limit)
				if err != nil {
					return err
				}
				printDocuments(cmd.OutOrStdout(), docs)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of results")

	return cmd
}

func newDocsExportCommand() *cobra.Command {
	var (
		output string
		page   int
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write decrypted pages to a directory",
		Long:  "Decrypt a document and copy its pages out of the store. The exported files are plaintext and no longer managed by DocVault.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(output, 0o700); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}

				var temps []string
				if page >= 0 {
					temp, err := repo.GetDecryptedFilePath(ctx, doc.ID, page)
					if err != nil {
						return err
					}
					temps = []string{temp}
				} else if temps, err = repo.GetDecryptedAllPages(ctx, doc.ID); err != nil {
					return err
				}
				defer repo.CleanupTempFiles(ctx)

				for i, temp := range temps {
					index := i
					if page >= 0 {
						index = page
					}
					dst := filepath.Join(output, fmt.Sprintf("%s-%d%s", doc.ID, index+1, filepath.Ext(temp)))
					if err := copyFile(temp, dst); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), dst)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory")
	cmd.Flags().IntVarP(&page, "page", "p", -1, "export only this page (0-based)")

	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}

func newDocsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove documents and erase their ciphertext",
		Long:    "Remove documents in the given order. Removal stops at the first document that fails.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				if err := repo.DeleteDocuments(ctx, args); err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Removed %d document(s)\n", len(args))
				return nil
			})
		},
	}
}

func newDocsOcrCommand() *cobra.Command {
	var (
		status vault.OcrStatus = vault.OcrCompleted
		text   string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "ocr <id>",
		Short: "Record recognized text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recognized *string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				s := string(data)
				recognized = &s
			case cmd.Flags().Changed("text"):
				recognized = &text
			}

			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.UpdateDocumentOcr(ctx, args[0], recognized, status)
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "OCR status of %s is %s\n", doc.ID, doc.OcrStatus)
				return nil
			})
		},
	}

	cmd.Flags().Var((*ocrStatusValue)(&status), "status", "ocr status (pending, processing, completed, failed)")
	cmd.Flags().StringVar(&text, "text", "", "recognized text")
	cmd.Flags().StringVar(&file, "text-file", "", "read recognized text from a file")

	return cmd
}

func newDocsFavoriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <id>",
		Short: "Toggle the favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.ToggleFavorite(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Favorite: %t\n", doc.IsFavorite)
				return nil
			})
		},
	}
}

func newDocsTitleCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "title <id> <title>",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := vault.UpdateCommand{Title: &args[1]}
			if cmd.Flags().Changed("description") {
				if description == "" {
					update.ClearDescription = true
				} else {
					update.Description = &description
				}
			}

			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				if _, err := repo.UpdateDocument(ctx, args[0], update); err != nil {
					return err
				}
				successColor.Fprintln(cmd.OutOrStdout(), "Updated")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "new description (empty clears it)")

	return cmd
}

func newDocsMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> [folder]",
		Short: "Move a document into a folder, or out of any folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var folder *string
			if len(args) == 2 {
				folder = &args[1]
			}
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				_, err := repo.MoveToFolder(ctx, args[0], folder)
				return err
			})
		},
	}
}

func newDocsReplacePageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replace-page <id> <index> <file>",
		Short: "Replace the content of one page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid page index %q", args[1])
			}
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.UpdateDocumentFile(ctx, args[0], index, args[2])
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "Replaced page %d of %s\n", index, doc.ID)
				return nil
			})
		},
	}
}

func newDocsAppendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "append <id> <page>...",
		Short: "Append pages to a document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				doc, err := repo.AppendPages(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				successColor.Fprintf(cmd.OutOrStdout(), "%s now has %d page(s)\n", doc.ID, doc.PageCount())
				return nil
			})
		},
	}
}

func newDocsThumbnailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnail <id> <image>",
		Short: "Replace the thumbnail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				_, err := repo.UpdateThumbnail(ctx, args[0], args[1])
				return err
			})
		},
	}
}

func newDocsTagCommand() *cobra.Command {
	var (
		add    []string
		remove []string
	)

	cmd := &cobra.Command{
		Use:   "tag <id> [tag-id...]",
		Short: "Set, add or remove document tags",
		Long:  "With tag ids as arguments the document's tags are replaced. Use --add and --remove to change single tags.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepository(cmd, func(ctx context.Context, repo *vault.Repository) error {
				if len(args) > 1 || (len(add) == 0 && len(remove) == 0) {
					if _, err := repo.SetDocumentTags(ctx, id, args[1:]); err != nil {
						return err
					}
				}
				for _, tagID := range add {
					if err := repo.AddDocumentTag(ctx, id, tagID); err != nil {
						return err
					}
				}
				for _, tagID := range remove {
					if err := repo.RemoveDocumentTag(ctx, id, tagID); err != nil {
						return err
					}
				}

				tags, err := repo.GetDocumentTags(ctx, id)
				if err != nil {
					return err
				}
				printTags(cmd.OutOrStdout(), tags)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&add, "add", nil, "tag id to add")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "tag id to remove")

	return cmd
}

// ocrStatusValue adapts vault.OcrStatus to pflag.Value.
type ocrStatusValue vault.OcrStatus

func (v *ocrStatusValue) String() string { return string(*v) }

func (v *ocrStatusValue) Set(s string) error {
	status := vault.OcrStatus(s)
	if !status.Valid() {
		return fmt.Errorf("unknown ocr status %q", s)
	}
	*v = ocrStatusValue(status)
	return nil
}

func (v *ocrStatusValue) Type() string { return "status" }

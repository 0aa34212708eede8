package vault

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mwantia/docvault/pkg/blob"
	"github.com/mwantia/docvault/pkg/db/models"
	"golang.org/x/sync/errgroup"
)

// CreateDocument stores a single-page document read from path.
func (r *Repository) CreateDocument(ctx context.Context, path string, cmd CreateCommand) (*Document, error) {
	cmd.PagePaths = []string{path}
	return r.CreateDocumentWithPages(ctx, cmd)
}

// CreateDocumentWithPages encrypts every page, then records the document.
// On any failure every file written for the new id is removed before the
// error is returned.
func (r *Repository) CreateDocumentWithPages(ctx context.Context, cmd CreateCommand) (*Document, error) {
	const op = "create"

	sizes, err := r.validateCreate(ctx, &cmd)
	if err != nil {
		return nil, newError(op, "", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(op, "", err)
	}

	id := uuid.NewString()
	unlock := r.locks.Lock(id)
	defer unlock()

	// Once files are being written the operation runs to completion or
	// rollback; a cancelled caller must not leave half a document.
	ctx = context.WithoutCancel(ctx)

	paths, err := r.encryptPages(ctx, id, 0, cmd.PagePaths)
	if err != nil {
		r.rollbackCreate(id)
		return nil, newError(op, id, err)
	}

	doc := &models.Document{
		ID:               id,
		Title:            cmd.Title,
		Description:      cmd.Description,
		ThumbnailPath:    r.storeThumbnail(ctx, id, cmd),
		OriginalFilename: cmd.OriginalFilename,
		MimeType:         cmd.MimeType,
		OcrStatus:        string(cmd.OcrStatus),
		OcrText:          cmd.OcrText,
		FolderID:         cmd.FolderID,
		IsFavorite:       cmd.IsFavorite,
		PageCount:        len(paths),
	}
	pages := make([]models.Page, len(paths))
	for i, p := range paths {
		pages[i] = models.Page{DocumentID: id, PageIndex: i, Path: p, SizeBytes: sizes[i]}
		doc.SizeBytes += sizes[i]
	}

	if err := r.meta.CreateDocument(ctx, doc, pages, cmd.TagIDs); err != nil {
		r.rollbackCreate(id)
		return nil, newError(op, id, err)
	}

	r.log.Info("Created document '%s' with %d page(s)", id, len(paths))

	created, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}
	return fromModel(created), nil
}

func (r *Repository) validateCreate(ctx context.Context, cmd *CreateCommand) ([]int64, error) {
	if len(cmd.PagePaths) == 0 {
		return nil, fmt.Errorf("%w: at least one page is required", ErrInvalidInput)
	}
	sizes, err := checkSources(cmd.PagePaths)
	if err != nil {
		return nil, err
	}

	if cmd.OcrStatus == "" {
		cmd.OcrStatus = OcrPending
	}
	if !cmd.OcrStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown ocr status %q", ErrInvalidInput, cmd.OcrStatus)
	}

	first := cmd.PagePaths[0]
	if cmd.OriginalFilename == "" {
		cmd.OriginalFilename = filepath.Base(first)
	}
	if cmd.MimeType == "" {
		cmd.MimeType = blob.MIMEForPath(first)
	}
	if strings.TrimSpace(cmd.Title) == "" {
		cmd.Title = strings.TrimSuffix(cmd.OriginalFilename, filepath.Ext(cmd.OriginalFilename))
	}

	for _, tagID := range cmd.TagIDs {
		if _, err := r.meta.GetTag(ctx, tagID); err != nil {
			return nil, fmt.Errorf("%w: tag %s: %w", ErrInvalidInput, tagID, err)
		}
	}
	return sizes, nil
}

// encryptPages encrypts srcs into the page slots start, start+1, ... on a
// bounded pool. The first failure cancels the remaining pages.
func (r *Repository) encryptPages(ctx context.Context, id string, start int, srcs []string) ([]string, error) {
	paths := make([]string, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, src := range srcs {
		g.Go(func() error {
			path, err := r.blobs.StorePageFile(gctx, id, start+i, src)
			if err != nil {
				return fmt.Errorf("page %d: %w", start+i, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return paths, err
	}
	return paths, nil
}

// storeThumbnail is best-effort: a failure is logged and the document is
// created without one.
func (r *Repository) storeThumbnail(ctx context.Context, id string, cmd CreateCommand) *string {
	var (
		path string
		err  error
	)
	switch {
	case len(cmd.Thumbnail) > 0:
		path, err = r.blobs.StoreThumbnail(ctx, id, cmd.Thumbnail)
	case cmd.ThumbnailPath != "":
		path, err = r.blobs.StoreThumbnailFile(ctx, id, cmd.ThumbnailPath)
	default:
		return nil
	}

	if err != nil {
		r.log.Warn("Skipping thumbnail for document '%s': %v", id, err)
		if _, derr := r.blobs.DeletePermanent(r.blobs.ThumbnailPath(id)); derr != nil {
			r.log.Warn("Failed to remove thumbnail leftovers for '%s': %v", id, derr)
		}
		return nil
	}
	return &path
}

func (r *Repository) rollbackCreate(id string) {
	results := r.blobs.DeleteAllForDocument(id)
	for path, ok := range results {
		if !ok {
			r.log.Error("Rollback left '%s' behind for document '%s'", path, id)
		}
	}
	r.log.Warn("Rolled back document '%s' (%d file(s) removed)", id, countTrue(results))
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, ok := range m {
		if ok {
			n++
		}
	}
	return n
}

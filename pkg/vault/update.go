package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwantia/docvault/pkg/db/models"
)

// UpdateDocument applies a metadata-only change. Concurrent updates of the
// same document are serialized; the last one wins.
func (r *Repository) UpdateDocument(ctx context.Context, id string, cmd UpdateCommand) (*Document, error) {
	const op = "update"

	unlock := r.locks.Lock(id)
	defer unlock()

	return r.modify(ctx, op, id, func(m *models.Document) error {
		if cmd.Title != nil {
			if strings.TrimSpace(*cmd.Title) == "" {
				return fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
			}
			m.Title = *cmd.Title
		}
		if cmd.ClearDescription {
			m.Description = nil
		} else if cmd.Description != nil {
			m.Description = cmd.Description
		}
		if cmd.OcrStatus != nil {
			if !cmd.OcrStatus.Valid() {
				return fmt.Errorf("%w: unknown ocr status %q", ErrInvalidInput, *cmd.OcrStatus)
			}
			m.OcrStatus = string(*cmd.OcrStatus)
		}
		if cmd.OcrText != nil {
			m.OcrText = cmd.OcrText
		}
		if cmd.ClearFolder {
			m.FolderID = nil
		} else if cmd.FolderID != nil {
			m.FolderID = cmd.FolderID
		}
		if cmd.IsFavorite != nil {
			m.IsFavorite = *cmd.IsFavorite
		}
		return nil
	}, cmd.TagIDs)
}

func (r *Repository) ToggleFavorite(ctx context.Context, id string) (*Document, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	return r.modify(ctx, "toggle favorite", id, func(m *models.Document) error {
		m.IsFavorite = !m.IsFavorite
		return nil
	}, nil)
}

// UpdateDocumentOcr records the result of an external OCR run.
func (r *Repository) UpdateDocumentOcr(ctx context.Context, id string, text *string, status OcrStatus) (*Document, error) {
	const op = "update ocr"
	if !status.Valid() {
		return nil, invalid(op, id, "unknown ocr status %q", status)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	return r.modify(ctx, op, id, func(m *models.Document) error {
		m.OcrStatus = string(status)
		m.OcrText = text
		return nil
	}, nil)
}

// MoveToFolder sets or, with a nil folderID, clears the document's folder.
func (r *Repository) MoveToFolder(ctx context.Context, id string, folderID *string) (*Document, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	return r.modify(ctx, "move", id, func(m *models.Document) error {
		m.FolderID = folderID
		return nil
	}, nil)
}

func (r *Repository) SetDocumentTags(ctx context.Context, id string, tagIDs []string) (*Document, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	if tagIDs == nil {
		tagIDs = []string{}
	}
	return r.modify(ctx, "set tags", id, nil, tagIDs)
}

// modify is the read-modify-write cycle shared by metadata-only updates.
// A nil tagIDs leaves tags untouched.
func (r *Repository) modify(ctx context.Context, op, id string, apply func(*models.Document) error, tagIDs []string) (*Document, error) {
	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}

	if apply != nil {
		if err := apply(m); err != nil {
			return nil, newError(op, id, err)
		}
		if err := r.meta.UpdateDocument(ctx, m); err != nil {
			return nil, newError(op, id, err)
		}
	}

	if tagIDs != nil {
		if err := r.meta.SetDocumentTags(ctx, id, tagIDs); err != nil {
			return nil, newError(op, id, err)
		}
	}

	updated, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}
	return fromModel(updated), nil
}

// UpdateDocumentFile replaces the content of one page. The replacement is
// encrypted to a fresh path, so the current page survives any failure
// before the metadata commit. The old ciphertext is removed afterwards.
func (r *Repository) UpdateDocumentFile(ctx context.Context, id string, index int, src string) (*Document, error) {
	const op = "replace page"

	size, err := checkSource(src)
	if err != nil {
		return nil, newError(op, id, err)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}
	if index < 0 || index >= len(m.Pages) {
		return nil, invalid(op, id, "page %d out of range (%d pages)", index, len(m.Pages))
	}
	oldPath := m.Pages[index].Path

	ctx = context.WithoutCancel(ctx)

	newPath, err := r.blobs.ReplacePageFile(ctx, id, index, src)
	if err != nil {
		return nil, newError(op, id, err)
	}

	page := &models.Page{DocumentID: id, PageIndex: index, Path: newPath, SizeBytes: size}
	if err := r.meta.ReplacePage(ctx, page); err != nil {
		r.deleteBlob(newPath)
		return nil, newError(op, id, err)
	}
	r.deleteBlob(oldPath)

	r.log.Info("Replaced page %d of document '%s'", index, id)
	return r.GetDocument(ctx, id)
}

// AppendPages encrypts additional pages after the existing ones. New
// ciphertext is removed again if anything fails.
func (r *Repository) AppendPages(ctx context.Context, id string, srcs []string) (*Document, error) {
	const op = "append pages"

	if len(srcs) == 0 {
		return nil, invalid(op, id, "at least one page is required")
	}
	sizes, err := checkSources(srcs)
	if err != nil {
		return nil, newError(op, id, err)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}
	start := 0
	for _, p := range m.Pages {
		if p.PageIndex >= start {
			start = p.PageIndex + 1
		}
	}

	ctx = context.WithoutCancel(ctx)

	paths, err := r.encryptPages(ctx, id, start, srcs)
	if err != nil {
		r.rollbackPages(id, start, len(srcs))
		return nil, newError(op, id, err)
	}

	pages := make([]models.Page, len(paths))
	for i, p := range paths {
		pages[i] = models.Page{DocumentID: id, PageIndex: start + i, Path: p, SizeBytes: sizes[i]}
	}
	if err := r.meta.AppendPages(ctx, id, pages); err != nil {
		r.rollbackPages(id, start, len(srcs))
		return nil, newError(op, id, err)
	}

	r.log.Info("Appended %d page(s) to document '%s'", len(paths), id)
	return r.GetDocument(ctx, id)
}

func (r *Repository) rollbackPages(id string, start, count int) {
	for i := start; i < start+count; i++ {
		r.deleteBlob(r.blobs.PagePath(id, i))
	}
}

// UpdateThumbnail replaces the thumbnail with the plaintext image at src,
// staging it like UpdateDocumentFile does.
func (r *Repository) UpdateThumbnail(ctx context.Context, id string, src string) (*Document, error) {
	const op = "update thumbnail"

	if _, err := checkSource(src); err != nil {
		return nil, newError(op, id, err)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError(op, id, err)
	}

	ctx = context.WithoutCancel(ctx)

	path, err := r.blobs.ReplaceThumbnailFile(ctx, id, src)
	if err != nil {
		return nil, newError(op, id, err)
	}

	if err := r.meta.SetThumbnail(ctx, id, &path); err != nil {
		r.deleteBlob(path)
		return nil, newError(op, id, err)
	}
	if m.ThumbnailPath != nil && *m.ThumbnailPath != "" {
		r.deleteBlob(*m.ThumbnailPath)
	}

	return r.GetDocument(ctx, id)
}

func (r *Repository) deleteBlob(path string) {
	if _, err := r.blobs.DeletePermanent(path); err != nil {
		r.log.Warn("Failed to delete ciphertext '%s': %v", path, err)
	}
}

package vault

import "context"

// DeleteDocument removes every ciphertext file of the document, then its
// metadata row. Blobs go first: a crash in between leaves a row whose
// reads fail with ErrEncryptedFileNotFound rather than stale content
// reappearing. Deleting an unknown id returns ErrNotFound.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	const op = "delete"

	unlock := r.locks.Lock(id)
	defer unlock()

	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return newError(op, id, err)
	}

	ctx = context.WithoutCancel(ctx)

	paths := m.PagePaths()
	if m.ThumbnailPath != nil {
		paths = append(paths, *m.ThumbnailPath)
	}
	for _, path := range paths {
		// Missing files are fine here; the goal is that nothing remains.
		r.deleteBlob(path)
	}
	// Stragglers such as partial files from an interrupted update.
	r.blobs.DeleteAllForDocument(id)

	if err := r.meta.DeleteDocument(ctx, id); err != nil {
		return newError(op, id, err)
	}

	r.log.Info("Deleted document '%s'", id)
	return nil
}

// DeleteDocuments deletes ids in order and stops at the first failure.
func (r *Repository) DeleteDocuments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := r.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

package vault

import (
	"context"
	"fmt"

	"github.com/mwantia/docvault/pkg/blob"
	"golang.org/x/sync/errgroup"
)

// GetDecryptedFilePath decrypts one page into temp/ and returns its path.
// The caller owns the file and should release it with CleanupTempFiles.
func (r *Repository) GetDecryptedFilePath(ctx context.Context, id string, index int) (string, error) {
	const op = "decrypt page"

	unlock := r.locks.Lock(id)
	defer unlock()

	doc, path, err := r.pagePath(ctx, id, index)
	if err != nil {
		return "", newError(op, id, err)
	}

	temp, err := r.blobs.MaterializeDecrypted(ctx, path, blob.ExtensionForMIME(doc.MimeType))
	if err != nil {
		return "", newError(op, id, missingBlob(err))
	}
	return temp, nil
}

// GetDecryptedAllPages decrypts every page into temp/, in page order. If
// any page fails, temporaries already produced are erased.
func (r *Repository) GetDecryptedAllPages(ctx context.Context, id string) ([]string, error) {
	const op = "decrypt pages"

	unlock := r.locks.Lock(id)
	defer unlock()

	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, path := range doc.PagesPaths {
		if !r.blobs.Exists(path) {
			return nil, newError(op, id, fmt.Errorf("%w: page %d", ErrEncryptedFileNotFound, i))
		}
	}

	ext := blob.ExtensionForMIME(doc.MimeType)
	temps := make([]string, len(doc.PagesPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range doc.PagesPaths {
		g.Go(func() error {
			temp, err := r.blobs.MaterializeDecrypted(gctx, path, ext)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, missingBlob(err))
			}
			temps[i] = temp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.discardTemps(temps)
		return nil, newError(op, id, err)
	}
	return temps, nil
}

// GetDecryptedThumbnail decrypts the thumbnail into temp/. The file is
// named after the image type found in the plaintext.
func (r *Repository) GetDecryptedThumbnail(ctx context.Context, id string) (string, error) {
	const op = "decrypt thumbnail"

	unlock := r.locks.Lock(id)
	defer unlock()

	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	if !doc.HasThumbnail() {
		return "", newError(op, id, fmt.Errorf("%w: document has no thumbnail", ErrNotFound))
	}
	if !r.blobs.Exists(*doc.ThumbnailPath) {
		return "", newError(op, id, ErrEncryptedFileNotFound)
	}

	temp, err := r.blobs.MaterializeSniffed(ctx, *doc.ThumbnailPath)
	if err != nil {
		return "", newError(op, id, missingBlob(err))
	}
	return temp, nil
}

// ReadPage decrypts one page into memory without touching temp/.
func (r *Repository) ReadPage(ctx context.Context, id string, index int) ([]byte, error) {
	const op = "read page"

	unlock := r.locks.Lock(id)
	defer unlock()

	_, path, err := r.pagePath(ctx, id, index)
	if err != nil {
		return nil, newError(op, id, err)
	}

	data, err := r.blobs.ReadDecrypted(ctx, path)
	if err != nil {
		return nil, newError(op, id, missingBlob(err))
	}
	return data, nil
}

func (r *Repository) pagePath(ctx context.Context, id string, index int) (*Document, string, error) {
	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, "", err
	}
	doc := fromModel(m)

	if index < 0 || index >= doc.PageCount() {
		return nil, "", fmt.Errorf("%w: page %d out of range (%d pages)", ErrInvalidInput, index, doc.PageCount())
	}
	path := doc.PagesPaths[index]
	if !r.blobs.Exists(path) {
		return nil, "", fmt.Errorf("%w: page %d", ErrEncryptedFileNotFound, index)
	}
	return doc, path, nil
}

func (r *Repository) discardTemps(temps []string) {
	var produced []string
	for _, t := range temps {
		if t != "" {
			produced = append(produced, t)
		}
	}
	if len(produced) == 0 {
		return
	}
	for path, ok := range r.eraser.SecureDeleteMany(produced) {
		if !ok {
			r.log.Warn("Failed to erase temporary '%s'", path)
		}
	}
}

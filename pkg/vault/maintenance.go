package vault

import (
	"context"
	"os"
	"time"

	"github.com/mwantia/docvault/pkg/blob"
)

// CleanupTempFiles erases the decrypted temporaries this repository
// produced. It never fails; the result reports what happened.
func (r *Repository) CleanupTempFiles(ctx context.Context) blob.SweepResult {
	return r.blobs.SweepTemp()
}

// CleanupStaleTempFiles erases temporaries left by processes that exited
// without cleaning up. Temporaries of running processes are kept.
func (r *Repository) CleanupStaleTempFiles(ctx context.Context) blob.SweepResult {
	return r.blobs.SweepStaleTemp()
}

// SweepOrphans removes permanent ciphertext that no metadata row
// references, such as files left by a crash between encryption and the
// metadata insert.
func (r *Repository) SweepOrphans(ctx context.Context) (OrphanReport, error) {
	var report OrphanReport

	files, err := r.blobs.ListPermanent()
	if err != nil {
		return report, newError("sweep orphans", "", err)
	}
	referenced, err := r.referencedPaths(ctx)
	if err != nil {
		return report, newError("sweep orphans", "", err)
	}

	cutoff := time.Now().Add(-r.orphanGrace)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := referenced[path]; ok {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.ModTime().After(cutoff) {
			report.Skipped++
			continue
		}

		deleted, err := r.sweepOrphan(ctx, path)
		switch {
		case err != nil:
			r.log.Warn("Failed to remove orphan '%s': %v", path, err)
			report.Failed = append(report.Failed, path)
		case deleted:
			report.Deleted = append(report.Deleted, path)
		default:
			report.Skipped++
		}
	}

	if len(report.Deleted) > 0 || len(report.Failed) > 0 {
		r.log.Info("Orphan sweep: %d deleted, %d failed", len(report.Deleted), len(report.Failed))
	}
	return report, nil
}

// sweepOrphan re-checks a candidate under the document lock, since a
// create or update may have referenced it in the meantime.
func (r *Repository) sweepOrphan(ctx context.Context, path string) (bool, error) {
	id, ok := r.blobs.DocumentIDFromPath(path)
	if ok {
		unlock := r.locks.Lock(id)
		defer unlock()

		if m, err := r.meta.GetDocument(ctx, id); err == nil {
			if m.ThumbnailPath != nil && *m.ThumbnailPath == path {
				return false, nil
			}
			for _, p := range m.Pages {
				if p.Path == path {
					return false, nil
				}
			}
		}
	}
	return r.blobs.DeletePermanent(path)
}

func (r *Repository) referencedPaths(ctx context.Context) (map[string]struct{}, error) {
	paths, err := r.meta.ListBlobPaths(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

func (r *Repository) GetStorageInfo(ctx context.Context) (StorageInfo, error) {
	count, err := r.meta.CountDocuments(ctx)
	if err != nil {
		return StorageInfo{}, newError("storage info", "", err)
	}
	usage, err := r.blobs.Usage()
	if err != nil {
		return StorageInfo{}, newError("storage info", "", err)
	}
	return StorageInfo{
		DocumentCount:       count,
		DocumentsSizeBytes:  usage.Documents,
		ThumbnailsSizeBytes: usage.Thumbnails,
		TempSizeBytes:       usage.Temp,
	}, nil
}

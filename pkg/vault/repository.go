package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/mwantia/docvault/pkg/blob"
	"github.com/mwantia/docvault/pkg/db/store"
	"github.com/mwantia/docvault/pkg/log"
)

// BlobStore is the encrypted file layer used by the repository.
type BlobStore interface {
	StorePageFile(ctx context.Context, id string, index int, src string) (string, error)
	StoreThumbnail(ctx context.Context, id string, plaintext []byte) (string, error)
	StoreThumbnailFile(ctx context.Context, id string, src string) (string, error)
	ReplacePageFile(ctx context.Context, id string, index int, src string) (string, error)
	ReplaceThumbnailFile(ctx context.Context, id string, src string) (string, error)
	PagePath(id string, index int) string
	ThumbnailPath(id string) string

	MaterializeDecrypted(ctx context.Context, encryptedPath, ext string) (string, error)
	MaterializeSniffed(ctx context.Context, encryptedPath string) (string, error)
	ReadDecrypted(ctx context.Context, encryptedPath string) ([]byte, error)
	Exists(path string) bool

	DeletePermanent(path string) (bool, error)
	DeleteAllForDocument(id string) map[string]bool
	SweepTemp() blob.SweepResult
	SweepStaleTemp() blob.SweepResult
	ListPermanent() ([]string, error)
	DocumentIDFromPath(path string) (string, bool)
	Usage() (blob.Usage, error)
}

// Eraser removes decrypted temporaries when a multi-page read fails.
type Eraser interface {
	SecureDeleteMany(paths []string) map[string]bool
}

type Options struct {
	// Workers bounds concurrent page encryption and decryption per call.
	Workers int
	// OrphanGrace protects ciphertext younger than this from SweepOrphans,
	// so a create running in another process is not swept mid-flight.
	OrphanGrace time.Duration
	Logger      log.LoggerService
}

// Repository combines metadata and encrypted blobs into document
// operations that either complete or leave nothing behind.
type Repository struct {
	meta   store.MetadataStore
	blobs  BlobStore
	eraser Eraser
	log    log.LoggerService

	workers     int
	orphanGrace time.Duration
	locks       *keyedMutex
}

func New(meta store.MetadataStore, blobs BlobStore, eraser Eraser, opts Options) *Repository {
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Repository{
		meta:        meta,
		blobs:       blobs,
		eraser:      eraser,
		log:         opts.Logger,
		workers:     opts.Workers,
		orphanGrace: opts.OrphanGrace,
		locks:       newKeyedMutex(),
	}
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*Document, error) {
	m, err := r.meta.GetDocument(ctx, id)
	if err != nil {
		return nil, newError("get", id, err)
	}
	return fromModel(m), nil
}

func (r *Repository) ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error) {
	ms, err := r.meta.ListDocuments(ctx, opts)
	if err != nil {
		return nil, newError("list", "", err)
	}
	return fromModels(ms), nil
}

func (r *Repository) SearchDocuments(ctx context.Context, query string, limit int) ([]*Document, error) {
	ms, err := r.meta.SearchDocuments(ctx, query, limit)
	if err != nil {
		return nil, newError("search", "", err)
	}
	return fromModels(ms), nil
}

// checkSource validates a plaintext input file before any side effect.
func checkSource(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %w", ErrInvalidInput, blob.ErrSourceNotFound)
		}
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	f.Close()
	return info.Size(), nil
}

func checkSources(paths []string) ([]int64, error) {
	sizes := make([]int64, len(paths))
	for i, p := range paths {
		size, err := checkSource(p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		sizes[i] = size
	}
	return sizes, nil
}

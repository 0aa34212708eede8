package eraser

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mwantia/docvault/pkg/log"
)

var ErrNotRegular = errors.New("not a regular file")

const blockSize = 64 << 10

// Eraser overwrites file contents before unlinking them. On copy-on-write
// or wear-levelled storage the overwrite is best-effort; the unlink always
// happens when the file could be opened.
type Eraser struct {
	passes int
	log    log.LoggerService
}

// New returns an Eraser that performs one zero pass preceded by passes-1
// random passes.
func New(passes int, logger log.LoggerService) *Eraser {
	if passes < 1 {
		passes = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Eraser{
		passes: passes,
		log:    logger,
	}
}

// SecureDelete overwrites and removes path. It reports false without error
// when path does not exist.
func (e *Eraser) SecureDelete(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	if err := e.overwrite(path); err != nil {
		return false, err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to unlink: %w", err)
	}
	return true, nil
}

func (e *Eraser) overwrite(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open for overwrite: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat: %w", err)
	}
	size := info.Size()

	for pass := 1; pass <= e.passes; pass++ {
		var src io.Reader = zeroReader{}
		if pass < e.passes {
			src = rand.Reader
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, err := io.CopyBuffer(f, io.LimitReader(src, size), make([]byte, blockSize)); err != nil {
			return fmt.Errorf("failed to overwrite (pass %d): %w", pass, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
	}

	return f.Close()
}

// SecureDeleteMany erases every path and reports the outcome per path.
// Failures are logged and never stop the batch.
func (e *Eraser) SecureDeleteMany(paths []string) map[string]bool {
	results := make(map[string]bool, len(paths))
	for _, path := range paths {
		ok, err := e.SecureDelete(path)
		if err != nil {
			e.log.Error("Failed to securely delete '%s': %v", path, err)
		}
		results[path] = ok
	}
	return results
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

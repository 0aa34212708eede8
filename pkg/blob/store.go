package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/flock"
	"github.com/mwantia/docvault/pkg/log"
)

// staleSessionAge protects a temp session that was created a moment ago
// and has not taken its lock yet.
const staleSessionAge = time.Minute

// Cipher is the part of the crypto engine the store needs.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, container []byte) ([]byte, error)
	EncryptFile(ctx context.Context, src, dst string) error
	DecryptFile(ctx context.Context, src, dst string) error
}

// locker is the advisory file lock guarding a temp session.
type locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

type Eraser interface {
	SecureDelete(path string) (bool, error)
	SecureDeleteMany(paths []string) map[string]bool
}

// Store manages encrypted blobs and decrypted temporaries below a root:
//
//	documents/{id}.{index}[.{generation}].enc
//	thumbnails/{id}.thumb[.{generation}].enc
//	temp/{session}/{random}{ext}
//	temp/{session}.lock
//
// Every Store owns one temp session, locked while the store is open, so
// processes sharing a root never erase each other's temporaries.
type Store struct {
	root   string
	cipher Cipher
	eraser Eraser
	log    log.LoggerService

	session     string
	sessionMu   sync.Mutex
	sessionLock locker

	// eraseCiphertext overwrites ciphertext before unlinking it. Plaintext
	// temporaries are always overwritten.
	eraseCiphertext bool
}

type Options struct {
	EraseCiphertext bool
	Logger          log.LoggerService
}

func New(root string, cipher Cipher, eraser Eraser, opts Options) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		root:            abs,
		cipher:          cipher,
		eraser:          eraser,
		log:             logger,
		session:         uuid.NewString(),
		eraseCiphertext: opts.EraseCiphertext,
	}, nil
}

// Close erases this store's temporaries and releases its session.
func (s *Store) Close() error {
	result := s.SweepTemp()

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.sessionLock == nil {
		return nil
	}

	var errs []error
	if result.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d temporary file(s) could not be erased", result.Failed))
	} else if err := os.Remove(s.SessionDir()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := os.Remove(s.SessionDir() + lockExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := s.sessionLock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release temp session: %w", err))
	}
	s.sessionLock = nil
	return errors.Join(errs...)
}

// ensureSession takes the session lock on first use and returns the
// session directory.
func (s *Store) ensureSession(ctx context.Context) (string, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	dir := s.SessionDir()
	if s.sessionLock == nil {
		if _, err := s.ensureDir(TempDir); err != nil {
			return "", err
		}
		var lock locker = flock.New(dir + lockExt)
		if err := lock.Lock(ctx); err != nil {
			return "", fmt.Errorf("failed to lock temp session: %w", err)
		}
		s.sessionLock = lock
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create temp session: %w", err)
	}
	return dir, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) ensureDir(name string) (string, error) {
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", name, err)
	}
	return dir, nil
}

func (s *Store) StorePage(ctx context.Context, id string, index int, plaintext []byte) (string, error) {
	if _, err := s.ensureDir(DocumentsDir); err != nil {
		return "", err
	}
	path := s.PagePath(id, index)
	return path, s.storeBytes(ctx, plaintext, path)
}

func (s *Store) StorePageFile(ctx context.Context, id string, index int, src string) (string, error) {
	if _, err := s.ensureDir(DocumentsDir); err != nil {
		return "", err
	}
	path := s.PagePath(id, index)
	return path, s.storeFile(ctx, src, path)
}

func (s *Store) StoreThumbnail(ctx context.Context, id string, plaintext []byte) (string, error) {
	if _, err := s.ensureDir(ThumbnailsDir); err != nil {
		return "", err
	}
	path := s.ThumbnailPath(id)
	return path, s.storeBytes(ctx, plaintext, path)
}

func (s *Store) StoreThumbnailFile(ctx context.Context, id string, src string) (string, error) {
	if _, err := s.ensureDir(ThumbnailsDir); err != nil {
		return "", err
	}
	path := s.ThumbnailPath(id)
	return path, s.storeFile(ctx, src, path)
}

// ReplacePageFile encrypts src next to the current page of (id, index)
// instead of over it. The caller commits the returned path and then
// deletes the previous one.
func (s *Store) ReplacePageFile(ctx context.Context, id string, index int, src string) (string, error) {
	if _, err := s.ensureDir(DocumentsDir); err != nil {
		return "", err
	}
	path := s.pageGenerationPath(id, index)
	return path, s.storeFile(ctx, src, path)
}

// ReplaceThumbnailFile is ReplacePageFile for the thumbnail.
func (s *Store) ReplaceThumbnailFile(ctx context.Context, id string, src string) (string, error) {
	if _, err := s.ensureDir(ThumbnailsDir); err != nil {
		return "", err
	}
	path := s.thumbnailGenerationPath(id)
	return path, s.storeFile(ctx, src, path)
}

func (s *Store) storeFile(ctx context.Context, src, dst string) error {
	if err := checkSource(src); err != nil {
		return err
	}
	return s.cipher.EncryptFile(ctx, src, dst)
}

func (s *Store) storeBytes(ctx context.Context, plaintext []byte, dst string) error {
	container, err := s.cipher.Encrypt(ctx, plaintext)
	if err != nil {
		return err
	}

	partial := dst + partialExt
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	_, err = f.Write(container)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(partial, dst)
	}
	if err != nil {
		os.Remove(partial)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, path)
	}
	return nil
}

// MaterializeDecrypted decrypts encryptedPath into a fresh file in the
// session directory. The caller owns the returned path and should release
// it via SweepTemp or an eraser.
func (s *Store) MaterializeDecrypted(ctx context.Context, encryptedPath, ext string) (string, error) {
	if err := s.within(encryptedPath); err != nil {
		return "", err
	}
	if err := checkSource(encryptedPath); err != nil {
		return "", err
	}

	tempPath, err := s.tempPath(ctx, ext)
	if err != nil {
		return "", err
	}
	if err := s.cipher.DecryptFile(ctx, encryptedPath, tempPath); err != nil {
		return "", err
	}
	return tempPath, nil
}

// MaterializeSniffed decrypts a small blob and names the temporary after
// the type its plaintext starts with.
func (s *Store) MaterializeSniffed(ctx context.Context, encryptedPath string) (string, error) {
	plaintext, err := s.ReadDecrypted(ctx, encryptedPath)
	if err != nil {
		return "", err
	}

	tempPath, err := s.tempPath(ctx, ExtensionForContent(plaintext))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(tempPath, plaintext, 0o600); err != nil {
		s.eraser.SecureDelete(tempPath)
		return "", fmt.Errorf("failed to write temporary: %w", err)
	}
	return tempPath, nil
}

func (s *Store) tempPath(ctx context.Context, ext string) (string, error) {
	dir, err := s.ensureSession(ctx)
	if err != nil {
		return "", err
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, uuid.NewString()+ext), nil
}

// ReadDecrypted decrypts a blob into memory without touching the disk.
func (s *Store) ReadDecrypted(ctx context.Context, encryptedPath string) ([]byte, error) {
	if err := s.within(encryptedPath); err != nil {
		return nil, err
	}
	container, err := os.ReadFile(encryptedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, encryptedPath)
		}
		return nil, err
	}
	return s.cipher.Decrypt(ctx, container)
}

func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DeletePermanent removes a ciphertext file. A missing file reports false.
func (s *Store) DeletePermanent(path string) (bool, error) {
	if err := s.within(path); err != nil {
		return false, err
	}
	if s.eraseCiphertext {
		return s.eraser.SecureDelete(path)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) deleteMany(paths []string) map[string]bool {
	if s.eraseCiphertext {
		return s.eraser.SecureDeleteMany(paths)
	}
	results := make(map[string]bool, len(paths))
	for _, path := range paths {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Error("Failed to delete '%s': %v", path, err)
		}
		results[path] = err == nil
	}
	return results
}

// DeleteAllForDocument removes every page, thumbnail and partial file that
// belongs to id, whether or not metadata references it.
func (s *Store) DeleteAllForDocument(id string) map[string]bool {
	if _, err := uuid.Parse(id); err != nil {
		s.log.Warn("Refusing to glob for invalid document id '%s'", id)
		return map[string]bool{}
	}

	patterns := []string{
		filepath.Join(s.root, DocumentsDir, id+".*"+encryptedExt),
		filepath.Join(s.root, DocumentsDir, id+".*"+encryptedExt+partialExt),
		filepath.Join(s.root, ThumbnailsDir, id+".thumb*"+encryptedExt),
		filepath.Join(s.root, ThumbnailsDir, id+".thumb*"+encryptedExt+partialExt),
	}

	var paths []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return map[string]bool{}
	}

	results := s.deleteMany(paths)
	s.log.Debug("Deleted %d blob(s) for document '%s'", countTrue(results), id)
	return results
}

// SweepResult summarizes a temp directory sweep.
type SweepResult struct {
	Deleted int
	Failed  int
}

func (r *SweepResult) add(other SweepResult) {
	r.Deleted += other.Deleted
	r.Failed += other.Failed
}

// SweepTemp securely erases this store's temporaries. Sessions of other
// stores are left to SweepStaleTemp. A session that never started is a
// no-op.
func (s *Store) SweepTemp() SweepResult {
	s.sessionMu.Lock()
	started := s.sessionLock != nil
	s.sessionMu.Unlock()
	if !started {
		return SweepResult{}
	}

	result := s.eraseTree(s.SessionDir(), true)
	if result.Deleted > 0 || result.Failed > 0 {
		s.log.Info("Swept temp session: %d deleted, %d failed", result.Deleted, result.Failed)
	}
	return result
}

// SweepStaleTemp erases temp sessions whose owner is gone, plus loose
// files from older layouts. A session is gone once its lock is free and it
// is older than staleSessionAge. This store's own session is skipped.
func (s *Store) SweepStaleTemp() SweepResult {
	var result SweepResult
	dir := filepath.Join(s.root, TempDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Failed to read temp directory: %v", err)
			result.Failed++
		}
		return result
	}

	cutoff := time.Now().Add(-staleSessionAge)
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		if strings.TrimSuffix(name, lockExt) == s.session {
			continue
		}

		switch {
		case strings.HasSuffix(name, lockExt):
			base := strings.TrimSuffix(path, lockExt)
			if _, err := os.Lstat(base); err == nil {
				// Handled together with its session directory.
				continue
			}
			if s.sessionStale(base, cutoff) {
				os.Remove(path)
			}
		case entry.IsDir():
			if !s.sessionStale(path, cutoff) {
				s.log.Debug("Keeping temp session '%s'", name)
				continue
			}
			swept := s.eraseTree(path, false)
			result.add(swept)
			if swept.Failed == 0 {
				os.Remove(path + lockExt)
			}
		default:
			if info, err := entry.Info(); err == nil && info.ModTime().After(cutoff) {
				continue
			}
			result.add(s.eraseTree(path, false))
		}
	}

	if result.Deleted > 0 || result.Failed > 0 {
		s.log.Info("Swept stale temp sessions: %d deleted, %d failed", result.Deleted, result.Failed)
	}
	return result
}

func (s *Store) sessionStale(base string, cutoff time.Time) bool {
	lockPath := base + lockExt
	info, err := os.Stat(lockPath)
	if err != nil {
		info, err = os.Stat(base)
		return err == nil && info.ModTime().Before(cutoff)
	}
	if info.ModTime().After(cutoff) {
		return false
	}
	held, err := sessionHeld(lockPath)
	if err != nil {
		s.log.Warn("Failed to check temp session lock '%s': %v", lockPath, err)
		return false
	}
	return !held
}

// eraseTree securely erases every file below root. Directories are removed
// deepest first; root itself stays when keepRoot is set.
func (s *Store) eraseTree(root string, keepRoot bool) SweepResult {
	var result SweepResult

	var files, dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			s.log.Warn("Failed to walk '%s': %v", path, err)
			result.Failed++
			return nil
		}
		switch {
		case d.IsDir():
			if path != root || !keepRoot {
				dirs = append(dirs, path)
			}
		case d.Type().IsRegular():
			files = append(files, path)
		default:
			// Symlinks and other specials carry no plaintext of their own.
			if err := os.Remove(path); err != nil {
				result.Failed++
			} else {
				result.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Temp sweep aborted: %v", err)
	}

	if len(files) > 0 {
		for path, ok := range s.eraser.SecureDeleteMany(files) {
			if ok {
				result.Deleted++
			} else if _, err := os.Lstat(path); err == nil {
				result.Failed++
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			result.Failed++
		}
	}
	return result
}

// ListPermanent returns every file in documents/ and thumbnails/.
func (s *Store) ListPermanent() ([]string, error) {
	var paths []string
	for _, name := range []string{DocumentsDir, ThumbnailsDir} {
		entries, err := os.ReadDir(filepath.Join(s.root, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				paths = append(paths, filepath.Join(s.root, name, entry.Name()))
			}
		}
	}
	return paths, nil
}

// Usage holds byte totals per storage area.
type Usage struct {
	Documents  int64
	Thumbnails int64
	Temp       int64
}

func (s *Store) Usage() (Usage, error) {
	var u Usage
	var err error
	if u.Documents, err = dirSize(filepath.Join(s.root, DocumentsDir)); err != nil {
		return u, err
	}
	if u.Thumbnails, err = dirSize(filepath.Join(s.root, ThumbnailsDir)); err != nil {
		return u, err
	}
	if u.Temp, err = dirSize(filepath.Join(s.root, TempDir)); err != nil {
		return u, err
	}
	return u, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
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

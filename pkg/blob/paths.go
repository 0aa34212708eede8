package blob

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	DocumentsDir  = "documents"
	ThumbnailsDir = "thumbnails"
	TempDir       = "temp"

	encryptedExt = ".enc"
	partialExt   = ".partial"
	lockExt      = ".lock"
)

// PagePath returns the deterministic ciphertext path of a page.
func (s *Store) PagePath(id string, index int) string {
	return filepath.Join(s.root, DocumentsDir, fmt.Sprintf("%s.%d%s", id, index, encryptedExt))
}

func (s *Store) ThumbnailPath(id string) string {
	return filepath.Join(s.root, ThumbnailsDir, id+".thumb"+encryptedExt)
}

// pageGenerationPath names a replacement page. It never collides with the
// deterministic path, so the current page stays intact until metadata
// points at the replacement.
func (s *Store) pageGenerationPath(id string, index int) string {
	return filepath.Join(s.root, DocumentsDir, fmt.Sprintf("%s.%d.%s%s", id, index, generation(), encryptedExt))
}

func (s *Store) thumbnailGenerationPath(id string) string {
	return filepath.Join(s.root, ThumbnailsDir, id+".thumb."+generation()+encryptedExt)
}

func generation() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SessionDir is the directory holding this store's decrypted temporaries.
func (s *Store) SessionDir() string {
	return filepath.Join(s.root, TempDir, s.session)
}

// DocumentIDFromPath extracts the document id from a permanent ciphertext
// path, including partial files left by an interrupted write.
func (s *Store) DocumentIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	head, _, found := strings.Cut(name, ".")
	if !found {
		return "", false
	}
	if _, err := uuid.Parse(head); err != nil {
		return "", false
	}
	return head, true
}

var preferredExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/tiff":      ".tiff",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",

	"application/octet-stream": ".bin",
}

// ExtensionForContent sniffs plaintext for a known image or document
// signature and maps it like ExtensionForMIME.
func ExtensionForContent(data []byte) string {
	return ExtensionForMIME(http.DetectContentType(data))
}

// ExtensionForMIME maps a MIME type to the file extension used for
// decrypted temporaries. Unknown types map to ".bin".
func ExtensionForMIME(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	base = strings.TrimSpace(base)
	if ext, ok := preferredExt[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// MIMEForPath is the reverse lookup used when importing files.
func MIMEForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for m, e := range preferredExt {
		if e == ext {
			return m
		}
	}
	if ext == ".jpeg" {
		return "image/jpeg"
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}

func (s *Store) within(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideStore, path)
	}
	return nil
}

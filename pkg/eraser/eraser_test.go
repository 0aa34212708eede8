package eraser

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureDelete_OverwritesBeforeUnlink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.tmp")
	witness := filepath.Join(dir, "witness")

	content := bytes.Repeat([]byte("plaintext!"), 10_000)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	// The hard link keeps the inode alive after the unlink, so the
	// overwritten bytes stay observable.
	require.NoError(t, os.Link(path, witness))

	ok, err := New(2, nil).SecureDelete(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, path)

	got, err := os.ReadFile(witness)
	require.NoError(t, err)
	assert.Len(t, got, len(content))
	assert.Equal(t, make([]byte, len(content)), got)
}

func TestSecureDelete_Missing(t *testing.T) {
	ok, err := New(1, nil).SecureDelete(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSecureDelete_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ok, err := New(1, nil).SecureDelete(path)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, path)
}

func TestSecureDelete_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()

	ok, err := New(1, nil).SecureDelete(dir)
	assert.ErrorIs(t, err, ErrNotRegular)
	assert.False(t, ok)
	assert.DirExists(t, dir)
}

func TestSecureDeleteMany_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	sub := filepath.Join(dir, "sub")
	missing := filepath.Join(dir, "missing")

	require.NoError(t, os.WriteFile(a, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o600))
	require.NoError(t, os.Mkdir(sub, 0o700))

	results := New(1, nil).SecureDeleteMany([]string{a, sub, missing, b})

	assert.Equal(t, map[string]bool{a: true, sub: false, missing: false, b: true}, results)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
}

package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
	"github.com/mwantia/docvault/pkg/crypto"
	"github.com/mwantia/docvault/pkg/eraser"
	"github.com/mwantia/docvault/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, eraseCiphertext bool) *Store {
	t.Helper()
	return newStoreAt(t, t.TempDir(), eraseCiphertext)
}

func newStoreAt(t *testing.T, root string, eraseCiphertext bool) *Store {
	t.Helper()

	keys := keystore.New(keyring.NewArrayKeyring(nil), "master", nil)
	er := eraser.New(1, nil)
	engine, err := crypto.New(keys, crypto.WithChunkSize(4096), crypto.WithEraser(er))
	require.NoError(t, err)

	s, err := New(root, engine, er, Options{EraseCiphertext: eraseCiphertext})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// age backdates path so stale-session checks consider it abandoned.
func age(t *testing.T, paths ...string) {
	t.Helper()
	old := time.Now().Add(-2 * staleSessionAge)
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, old, old))
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestStorePageFile_RoundTrip(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()
	plaintext := bytes.Repeat([]byte{0x42}, 10_000)
	src := writeFile(t, t.TempDir(), "scan.jpg", plaintext)

	path, err := s.StorePageFile(ctx, id, 0, src)
	require.NoError(t, err)
	assert.Equal(t, s.PagePath(id, 0), path)
	assert.True(t, s.Exists(path))
	assert.NoFileExists(t, path+".partial")

	ciphertext, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(ciphertext, plaintext[:64]))

	temp, err := s.MaterializeDecrypted(ctx, path, ".jpg")
	require.NoError(t, err)
	assert.Equal(t, s.SessionDir(), filepath.Dir(temp))
	assert.Equal(t, ".jpg", filepath.Ext(temp))

	got, err := os.ReadFile(temp)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	inMemory, err := s.ReadDecrypted(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, plaintext, inMemory)
}

func TestStorePageFile_MissingSource(t *testing.T) {
	s := newStore(t, true)

	_, err := s.StorePageFile(context.Background(), uuid.NewString(), 0, filepath.Join(t.TempDir(), "nope.jpg"))
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestStoreThumbnail(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()

	path, err := s.StoreThumbnail(ctx, id, []byte("thumb"))
	require.NoError(t, err)
	assert.Equal(t, s.ThumbnailPath(id), path)

	got, err := s.ReadDecrypted(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), got)
}

func TestMaterializeDecrypted_Errors(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	_, err := s.MaterializeDecrypted(ctx, s.PagePath(uuid.NewString(), 0), ".jpg")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	outside := writeFile(t, t.TempDir(), "x.enc", []byte("x"))
	_, err = s.MaterializeDecrypted(ctx, outside, ".jpg")
	assert.ErrorIs(t, err, ErrOutsideStore)
}

func TestMaterializeDecrypted_CorruptLeavesNoTemp(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()

	path, err := s.StorePage(ctx, id, 0, bytes.Repeat([]byte("p"), 9000))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = s.MaterializeDecrypted(ctx, path, ".jpg")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	entries, err := os.ReadDir(s.SessionDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteAllForDocument(t *testing.T) {
	for _, erase := range []bool{true, false} {
		s := newStore(t, erase)
		ctx := context.Background()
		id := uuid.NewString()
		other := uuid.NewString()

		for i := 0; i < 3; i++ {
			_, err := s.StorePage(ctx, id, i, []byte("page"))
			require.NoError(t, err)
		}
		_, err := s.StoreThumbnail(ctx, id, []byte("thumb"))
		require.NoError(t, err)
		keep, err := s.StorePage(ctx, other, 0, []byte("other"))
		require.NoError(t, err)

		straggler := s.PagePath(id, 7) + ".partial"
		require.NoError(t, os.WriteFile(straggler, []byte("half"), 0o600))
		thumbSrc := writeFile(t, t.TempDir(), "thumb.png", []byte("thumb v2"))
		_, err = s.ReplaceThumbnailFile(ctx, id, thumbSrc)
		require.NoError(t, err)

		results := s.DeleteAllForDocument(id)
		assert.Len(t, results, 6)
		for path, ok := range results {
			assert.True(t, ok, path)
			assert.NoFileExists(t, path)
		}
		assert.FileExists(t, keep)

		assert.Empty(t, s.DeleteAllForDocument(id))
	}
}

func TestDeletePermanent(t *testing.T) {
	s := newStore(t, true)
	path, err := s.StorePage(context.Background(), uuid.NewString(), 0, []byte("x"))
	require.NoError(t, err)

	ok, err := s.DeletePermanent(path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeletePermanent(path)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeletePermanent("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideStore)
}

func TestSweepTemp_Idempotent(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	assert.Equal(t, SweepResult{}, s.SweepTemp())

	path, err := s.StorePage(ctx, uuid.NewString(), 0, []byte("page"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.MaterializeDecrypted(ctx, path, ".jpg")
		require.NoError(t, err)
	}
	nested := filepath.Join(s.SessionDir(), "export")
	require.NoError(t, os.Mkdir(nested, 0o700))
	writeFile(t, nested, "page.pdf", []byte("plain"))

	assert.Equal(t, SweepResult{Deleted: 4}, s.SweepTemp())

	entries, err := os.ReadDir(s.SessionDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, SweepResult{}, s.SweepTemp())
	assert.FileExists(t, path)
}

func TestSweepStaleTemp_KeepsLiveSessions(t *testing.T) {
	root := t.TempDir()
	a := newStoreAt(t, root, true)
	b := newStoreAt(t, root, true)
	ctx := context.Background()

	page, err := a.StorePage(ctx, uuid.NewString(), 0, []byte("exporting"))
	require.NoError(t, err)
	exported, err := a.MaterializeDecrypted(ctx, page, ".jpg")
	require.NoError(t, err)
	age(t, a.SessionDir(), a.SessionDir()+lockExt)

	_, err = b.MaterializeDecrypted(ctx, page, ".jpg")
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Deleted: 1}, b.SweepTemp())
	assert.Equal(t, SweepResult{}, b.SweepStaleTemp())

	got, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, []byte("exporting"), got)
}

func TestSweepStaleTemp_ErasesAbandonedSessions(t *testing.T) {
	root := t.TempDir()
	crashed := newStoreAt(t, root, true)
	sweeper := newStoreAt(t, root, true)
	ctx := context.Background()

	page, err := crashed.StorePage(ctx, uuid.NewString(), 0, []byte("left behind"))
	require.NoError(t, err)
	leftover, err := crashed.MaterializeDecrypted(ctx, page, ".jpg")
	require.NoError(t, err)

	// A process that dies releases its lock without cleaning up.
	require.NoError(t, crashed.sessionLock.Unlock())
	crashed.sessionLock = nil

	assert.Equal(t, SweepResult{}, sweeper.SweepStaleTemp(), "young sessions are kept")

	loose := writeFile(t, filepath.Join(root, TempDir), "legacy.pdf", []byte("plain"))
	age(t, leftover, crashed.SessionDir(), crashed.SessionDir()+lockExt, loose)

	assert.Equal(t, SweepResult{Deleted: 2}, sweeper.SweepStaleTemp())
	assert.NoFileExists(t, leftover)
	assert.NoFileExists(t, loose)
	assert.NoDirExists(t, crashed.SessionDir())
	assert.NoFileExists(t, crashed.SessionDir()+lockExt)

	assert.Equal(t, SweepResult{}, sweeper.SweepStaleTemp())
}

func TestClose_ReleasesSession(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	require.NoError(t, s.Close(), "closing an unused store")

	page, err := s.StorePage(ctx, uuid.NewString(), 0, []byte("page"))
	require.NoError(t, err)
	temp, err := s.MaterializeDecrypted(ctx, page, ".jpg")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoFileExists(t, temp)
	assert.NoDirExists(t, s.SessionDir())
	assert.NoFileExists(t, s.SessionDir()+lockExt)
	assert.FileExists(t, page)
}

func TestReplacePageFile_KeepsCurrentPage(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()

	current, err := s.StorePage(ctx, id, 0, []byte("v1"))
	require.NoError(t, err)
	src := writeFile(t, t.TempDir(), "v2.jpg", []byte("v2"))

	staged, err := s.ReplacePageFile(ctx, id, 0, src)
	require.NoError(t, err)
	assert.NotEqual(t, current, staged)
	assert.Equal(t, filepath.Join(s.Root(), DocumentsDir), filepath.Dir(staged))

	got, err := s.ReadDecrypted(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	got, err = s.ReadDecrypted(ctx, staged)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	again, err := s.ReplacePageFile(ctx, id, 0, src)
	require.NoError(t, err)
	assert.NotEqual(t, staged, again)

	docID, ok := s.DocumentIDFromPath(staged)
	assert.True(t, ok)
	assert.Equal(t, id, docID)
}

func TestMaterializeSniffed(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	path, err := s.StoreThumbnail(ctx, id, png)
	require.NoError(t, err)

	temp, err := s.MaterializeSniffed(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(temp))
	assert.Equal(t, s.SessionDir(), filepath.Dir(temp))

	got, err := os.ReadFile(temp)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	_, err = s.MaterializeSniffed(ctx, s.ThumbnailPath(uuid.NewString()))
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestListPermanentAndDocumentID(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()
	id := uuid.NewString()

	page, err := s.StorePage(ctx, id, 0, []byte("page"))
	require.NoError(t, err)
	thumb, err := s.StoreThumbnail(ctx, id, []byte("thumb"))
	require.NoError(t, err)

	paths, err := s.ListPermanent()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{page, thumb}, paths)

	for _, p := range paths {
		got, ok := s.DocumentIDFromPath(p)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	}

	_, ok := s.DocumentIDFromPath(filepath.Join(s.Root(), DocumentsDir, "notes.txt"))
	assert.False(t, ok)
}

func TestUsage(t *testing.T) {
	s := newStore(t, true)
	ctx := context.Background()

	u, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, Usage{}, u)

	page, err := s.StorePage(ctx, uuid.NewString(), 0, make([]byte, 5000))
	require.NoError(t, err)
	_, err = s.MaterializeDecrypted(ctx, page, "jpg")
	require.NoError(t, err)

	info, err := os.Stat(page)
	require.NoError(t, err)

	u, err = s.Usage()
	require.NoError(t, err)
	assert.Equal(t, info.Size(), u.Documents)
	assert.Zero(t, u.Thumbnails)
	assert.Equal(t, int64(5000), u.Temp)
}

func TestExtensionForMIME(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionForMIME("image/jpeg"))
	assert.Equal(t, ".pdf", ExtensionForMIME("application/pdf; charset=binary"))
	assert.Equal(t, ".bin", ExtensionForMIME("application/x-docvault-unknown"))
	assert.Equal(t, "image/png", MIMEForPath("/scans/a.PNG"))
	assert.Equal(t, ".jpg", ExtensionForContent([]byte("\xff\xd8\xff\xe0")))
	assert.Equal(t, ".bin", ExtensionForContent([]byte{0x00, 0x01, 0x02}))
}

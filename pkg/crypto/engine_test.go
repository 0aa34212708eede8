package crypto

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwantia/docvault/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunk = 4096

type staticKeys struct {
	key keystore.Key
	err error
}

func (s *staticKeys) GetOrCreateKey(context.Context) (keystore.Key, error) {
	return s.key, s.err
}

func (s *staticKeys) HasKey(context.Context) (bool, error) {
	return s.err == nil, s.err
}

func newKeys(t *testing.T) *staticKeys {
	t.Helper()
	var key keystore.Key
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return &staticKeys{key: key}
}

func newEngine(t *testing.T, keys keystore.Provider, opts ...Option) *Engine {
	t.Helper()
	e, err := New(keys, append([]Option{WithChunkSize(testChunk)}, opts...)...)
	require.NoError(t, err)
	return e
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// countingReader yields an incrementing byte sequence.
type countingReader struct{ next byte }

func (c *countingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.next
		c.next++
	}
	return len(p), nil
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, testChunk - 1, testChunk, testChunk + 1, 3*testChunk + 17}

	for _, suite := range []Suite{SuiteAES256GCM, SuiteXChaCha20Poly1305} {
		e := newEngine(t, newKeys(t), WithSuite(suite))
		for _, size := range sizes {
			t.Run(suite.String(), func(t *testing.T) {
				plaintext := randomBytes(t, size)
				ctx := context.Background()

				container, err := e.Encrypt(ctx, plaintext)
				require.NoError(t, err)
				assert.Equal(t, byte(suite), container[4])

				got, err := e.Decrypt(ctx, container)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(plaintext, got), "size %d", size)
			})
		}
	}
}

func TestDecrypt_AcceptsOtherSuite(t *testing.T) {
	keys := newKeys(t)
	ctx := context.Background()

	sealed, err := newEngine(t, keys, WithSuite(SuiteXChaCha20Poly1305)).Encrypt(ctx, []byte("page"))
	require.NoError(t, err)

	got, err := newEngine(t, keys, WithSuite(SuiteAES256GCM)).Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("page"), got)
}

func TestDecrypt_DetectsBitFlips(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, randomBytes(t, 2*testChunk+100))
	require.NoError(t, err)

	for pos := 0; pos < len(container); pos += 97 {
		tampered := bytes.Clone(container)
		tampered[pos] ^= 0x01

		got, err := e.Decrypt(ctx, tampered)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "flip at %d", pos)
		assert.Nil(t, got)
	}
}

func TestDecrypt_DetectsTruncation(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, randomBytes(t, 3*testChunk+5))
	require.NoError(t, err)

	for _, cut := range []int{0, 3, 10, 19, 20, 24, 500, testChunk + 24, len(container) - 1} {
		_, err := e.Decrypt(ctx, container[:cut])
		assert.ErrorIs(t, err, ErrDecryptionFailed, "cut at %d", cut)
	}
}

func TestDecrypt_DetectsMissingFinalRecord(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, randomBytes(t, 2*testChunk+1))
	require.NoError(t, err)

	headerSize := fixedHeaderSize + SuiteAES256GCM.nonceSize()
	recordSize := 5 + testChunk + 16

	_, err = e.Decrypt(ctx, container[:headerSize+2*recordSize])
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_DetectsReorderedRecords(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, randomBytes(t, 2*testChunk+1))
	require.NoError(t, err)

	headerSize := fixedHeaderSize + SuiteAES256GCM.nonceSize()
	recordSize := 5 + testChunk + 16
	first := container[headerSize : headerSize+recordSize]
	second := container[headerSize+recordSize : headerSize+2*recordSize]

	swapped := bytes.Clone(container[:headerSize])
	swapped = append(swapped, second...)
	swapped = append(swapped, first...)
	swapped = append(swapped, container[headerSize+2*recordSize:]...)

	_, err = e.Decrypt(ctx, swapped)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_DetectsTrailingData(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, []byte("hello"))
	require.NoError(t, err)

	_, err = e.Decrypt(ctx, append(container, 0x00))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_WrongKey(t *testing.T) {
	ctx := context.Background()

	container, err := newEngine(t, newKeys(t)).Encrypt(ctx, []byte("secret page"))
	require.NoError(t, err)

	_, err = newEngine(t, newKeys(t)).Decrypt(ctx, container)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncrypt_FreshNoncePerContainer(t *testing.T) {
	e := newEngine(t, newKeys(t))
	ctx := context.Background()
	plaintext := []byte("same plaintext")

	a, err := e.Encrypt(ctx, plaintext)
	require.NoError(t, err)
	b, err := e.Encrypt(ctx, plaintext)
	require.NoError(t, err)

	headerSize := fixedHeaderSize + SuiteAES256GCM.nonceSize()
	assert.NotEqual(t, a[fixedHeaderSize:headerSize], b[fixedHeaderSize:headerSize])
	assert.NotEqual(t, a, b)
}

func TestEncrypt_InjectedRandIsDeterministic(t *testing.T) {
	keys := newKeys(t)
	ctx := context.Background()

	a, err := newEngine(t, keys, WithRand(&countingReader{})).Encrypt(ctx, []byte("page"))
	require.NoError(t, err)
	b, err := newEngine(t, keys, WithRand(&countingReader{})).Encrypt(ctx, []byte("page"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncrypt_KeyUnavailable(t *testing.T) {
	keys := &staticKeys{err: keystore.ErrKeyUnavailable}

	_, err := newEngine(t, keys).Encrypt(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.ErrorIs(t, err, keystore.ErrKeyUnavailable)
}

func TestWithChunkSize_Rejects(t *testing.T) {
	for _, size := range []int{0, 1000, 1024, 32 << 20} {
		_, err := New(newKeys(t), WithChunkSize(size))
		assert.Error(t, err, "size %d", size)
	}
}

type recordingEraser struct{ paths []string }

func (r *recordingEraser) SecureDelete(path string) (bool, error) {
	r.paths = append(r.paths, path)
	return true, os.Remove(path)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, newKeys(t))
	ctx := context.Background()

	plaintext := randomBytes(t, 5*testChunk+3)
	src := filepath.Join(dir, "page.jpg")
	enc := filepath.Join(dir, "page.enc")
	out := filepath.Join(dir, "page.out")
	require.NoError(t, os.WriteFile(src, plaintext, 0o600))

	require.NoError(t, e.EncryptFile(ctx, src, enc))
	assert.NoFileExists(t, enc+".partial")

	require.NoError(t, e.DecryptFile(ctx, enc, out))
	assert.NoFileExists(t, out+".partial")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, got))
}

func TestDecryptFile_FailureLeavesNoPlaintext(t *testing.T) {
	dir := t.TempDir()
	eraser := &recordingEraser{}
	e := newEngine(t, newKeys(t), WithEraser(eraser))
	ctx := context.Background()

	container, err := e.Encrypt(ctx, randomBytes(t, 3*testChunk))
	require.NoError(t, err)
	// Corrupt the last record so earlier records already reached the partial file.
	container[len(container)-1] ^= 0xFF

	enc := filepath.Join(dir, "page.enc")
	out := filepath.Join(dir, "page.out")
	require.NoError(t, os.WriteFile(enc, container, 0o600))

	err = e.DecryptFile(ctx, enc, out)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, out+".partial")
	assert.Equal(t, []string{out + ".partial"}, eraser.paths)
}

func TestEncryptFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, newKeys(t))

	err := e.EncryptFile(context.Background(), filepath.Join(dir, "missing"), filepath.Join(dir, "out.enc"))
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoFileExists(t, filepath.Join(dir, "out.enc.partial"))
}

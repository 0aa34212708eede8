package crypto

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/mwantia/docvault/pkg/keystore"
	"github.com/mwantia/docvault/pkg/log"
)

const DefaultChunkSize = 1 << 20

// Eraser removes plaintext left behind by a failed file decryption.
type Eraser interface {
	SecureDelete(path string) (bool, error)
}

// Engine seals and opens document containers with a key taken from a
// keystore.Provider.
type Engine struct {
	keys       keystore.Provider
	suite      Suite
	chunkShift uint8
	rand       io.Reader
	eraser     Eraser
	log        log.LoggerService
}

type Option func(*Engine) error

func WithSuite(s Suite) Option {
	return func(e *Engine) error {
		if !s.valid() {
			return fmt.Errorf("unsupported cipher suite %d", byte(s))
		}
		e.suite = s
		return nil
	}
}

// WithChunkSize sets the plaintext record size. It must be a power of two
// between 4KiB and 16MiB.
func WithChunkSize(size int) Option {
	return func(e *Engine) error {
		if size <= 0 || bits.OnesCount(uint(size)) != 1 {
			return fmt.Errorf("chunk size %d is not a power of two", size)
		}
		shift := bits.TrailingZeros(uint(size))
		if shift < minChunkShift || shift > maxChunkShift {
			return fmt.Errorf("chunk size %d out of range", size)
		}
		e.chunkShift = uint8(shift)
		return nil
	}
}

// WithRand replaces the nonce source.
func WithRand(r io.Reader) Option {
	return func(e *Engine) error {
		e.rand = r
		return nil
	}
}

func WithEraser(er Eraser) Option {
	return func(e *Engine) error {
		e.eraser = er
		return nil
	}
}

func WithLogger(l log.LoggerService) Option {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

func New(keys keystore.Provider, opts ...Option) (*Engine, error) {
	e := &Engine{
		keys:       keys,
		suite:      SuiteAES256GCM,
		chunkShift: 20,
		rand:       rand.Reader,
		log:        log.Discard(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Suite() Suite {
	return e.suite
}

func (e *Engine) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.EncryptStream(ctx, bytes.NewReader(plaintext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypt opens a complete container held in memory. Nothing is returned
// unless every record authenticates.
func (e *Engine) Decrypt(ctx context.Context, container []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.DecryptStream(ctx, bytes.NewReader(container), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) EncryptStream(ctx context.Context, r io.Reader, w io.Writer) error {
	key, err := e.keys.GetOrCreateKey(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	aead, err := e.suite.aead(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	h := header{
		suite:      e.suite,
		chunkShift: e.chunkShift,
		baseNonce:  make([]byte, e.suite.nonceSize()),
	}
	if _, err := io.ReadFull(e.rand, h.baseNonce); err != nil {
		return fmt.Errorf("%w: nonce: %w", ErrEncryptionFailed, err)
	}

	hdr := h.marshal()
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	br := bufio.NewReaderSize(r, h.chunkSize())
	chunk := make([]byte, h.chunkSize())
	sealed := make([]byte, 0, h.chunkSize()+aead.Overhead())
	var nonce, aad []byte
	prefix := make([]byte, 5)

	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
		}

		n, last, err := readChunk(br, chunk)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
		}

		flag := flagMore
		if last {
			flag = flagFinal
		}

		nonce = recordNonce(nonce, h.baseNonce, index)
		aad = recordAAD(aad, hdr, flag, index)
		sealed = aead.Seal(sealed[:0], nonce, chunk[:n], aad)

		prefix[0] = flag
		binary.BigEndian.PutUint32(prefix[1:], uint32(len(sealed)))
		if _, err := w.Write(prefix); err != nil {
			return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
		}
		if _, err := w.Write(sealed); err != nil {
			return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
		}

		if last {
			return nil
		}
	}
}

// DecryptStream writes each record's plaintext to w as soon as it
// authenticates. On error, w may hold a prefix of the plaintext and must be
// discarded by the caller.
func (e *Engine) DecryptStream(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)

	h, hdr, err := readHeader(br)
	if err != nil {
		return err
	}

	key, err := e.keys.GetOrCreateKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to load key: %w", err)
	}
	aead, err := h.suite.aead(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	maxSealed := h.chunkSize() + aead.Overhead()
	sealed := make([]byte, maxSealed)
	plain := make([]byte, 0, h.chunkSize())
	prefix := make([]byte, 5)
	var nonce, aad []byte

	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := io.ReadFull(br, prefix); err != nil {
			return fmt.Errorf("%w: truncated at record %d", ErrDecryptionFailed, index)
		}
		flag := prefix[0]
		if flag != flagMore && flag != flagFinal {
			return fmt.Errorf("%w: bad record flag", ErrDecryptionFailed)
		}
		size := int(binary.BigEndian.Uint32(prefix[1:]))
		if size < aead.Overhead() || size > maxSealed {
			return fmt.Errorf("%w: bad record length", ErrDecryptionFailed)
		}
		if _, err := io.ReadFull(br, sealed[:size]); err != nil {
			return fmt.Errorf("%w: truncated at record %d", ErrDecryptionFailed, index)
		}

		nonce = recordNonce(nonce, h.baseNonce, index)
		aad = recordAAD(aad, hdr, flag, index)
		plain, err = aead.Open(plain[:0], nonce, sealed[:size], aad)
		if err != nil {
			return fmt.Errorf("%w: record %d does not authenticate", ErrDecryptionFailed, index)
		}

		if flag == flagFinal {
			if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: trailing data after final record", ErrDecryptionFailed)
			}
		}

		if _, err := w.Write(plain); err != nil {
			return fmt.Errorf("failed to write plaintext: %w", err)
		}

		if flag == flagFinal {
			return nil
		}
	}
}

// EncryptFile encrypts src into dst. The container is written to a sibling
// partial file and renamed, so dst is either absent or complete.
func (e *Engine) EncryptFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	defer in.Close()

	partial := dst + ".partial"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	bw := bufio.NewWriterSize(out, 64<<10)
	err = e.EncryptStream(ctx, in, bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(partial, dst)
	}
	if err != nil {
		os.Remove(partial)
		if errors.Is(err, ErrEncryptionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	return nil
}

// DecryptFile decrypts src into dst. Plaintext is written to a sibling
// partial file that is only renamed to dst once the final record verifies;
// on failure the partial file is securely erased.
func (e *Engine) DecryptFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := dst + ".partial"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	bw := bufio.NewWriterSize(out, 64<<10)
	err = e.DecryptStream(ctx, in, bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(partial, dst)
	}
	if err != nil {
		e.discard(partial)
		return err
	}
	return nil
}

func (e *Engine) discard(path string) {
	if e.eraser != nil {
		if _, err := e.eraser.SecureDelete(path); err != nil {
			e.log.Error("Failed to erase partial plaintext '%s': %v", path, err)
		}
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Error("Failed to remove partial plaintext '%s': %v", path, err)
	}
}

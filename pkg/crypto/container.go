package crypto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Container layout (all integers big-endian):
//
//	magic "DVC\x01" | suite(1) | chunkShift(1) | nonceLen(1) | baseNonce
//	record*: flag(1) | sealedLen(4) | sealed
//
// The last record carries flag 1. Record i is sealed with nonce
// baseNonce ^ be64(i) (applied to the trailing 8 bytes) and additional
// data header || flag || be64(i).

var magic = [4]byte{'D', 'V', 'C', 0x01}

const (
	fixedHeaderSize = 7

	flagMore  byte = 0
	flagFinal byte = 1

	minChunkShift = 12
	maxChunkShift = 24
)

type header struct {
	suite      Suite
	chunkShift uint8
	baseNonce  []byte
}

func (h header) chunkSize() int {
	return 1 << h.chunkShift
}

func (h header) marshal() []byte {
	b := make([]byte, 0, fixedHeaderSize+len(h.baseNonce))
	b = append(b, magic[:]...)
	b = append(b, byte(h.suite), h.chunkShift, byte(len(h.baseNonce)))
	return append(b, h.baseNonce...)
}

func readHeader(r io.Reader) (header, []byte, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return header{}, nil, fmt.Errorf("%w: short header", ErrDecryptionFailed)
	}
	if [4]byte(fixed[:4]) != magic {
		return header{}, nil, fmt.Errorf("%w: bad magic", ErrDecryptionFailed)
	}

	h := header{
		suite:      Suite(fixed[4]),
		chunkShift: fixed[5],
	}
	if !h.suite.valid() {
		return header{}, nil, fmt.Errorf("%w: unknown suite %d", ErrDecryptionFailed, fixed[4])
	}
	if h.chunkShift < minChunkShift || h.chunkShift > maxChunkShift {
		return header{}, nil, fmt.Errorf("%w: bad chunk size", ErrDecryptionFailed)
	}
	if int(fixed[6]) != h.suite.nonceSize() {
		return header{}, nil, fmt.Errorf("%w: bad nonce length", ErrDecryptionFailed)
	}

	h.baseNonce = make([]byte, fixed[6])
	if _, err := io.ReadFull(r, h.baseNonce); err != nil {
		return header{}, nil, fmt.Errorf("%w: short header", ErrDecryptionFailed)
	}
	return h, append(fixed, h.baseNonce...), nil
}

func recordNonce(dst, base []byte, index uint64) []byte {
	dst = append(dst[:0], base...)
	tail := dst[len(dst)-8:]
	binary.BigEndian.PutUint64(tail, binary.BigEndian.Uint64(tail)^index)
	return dst
}

func recordAAD(dst, hdr []byte, flag byte, index uint64) []byte {
	dst = append(dst[:0], hdr...)
	dst = append(dst, flag)
	return binary.BigEndian.AppendUint64(dst, index)
}

// readChunk fills buf from r and reports whether r is exhausted afterwards.
func readChunk(r *bufio.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	case err != nil:
		return n, false, err
	}

	if _, err := r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

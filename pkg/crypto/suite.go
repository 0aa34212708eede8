package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/mwantia/docvault/pkg/keystore"
)

// Suite identifies the AEAD used for a container. The value is written
// into every container header.
type Suite byte

const (
	SuiteAES256GCM         Suite = 1
	SuiteXChaCha20Poly1305 Suite = 2
)

func ParseSuite(name string) (Suite, error) {
	switch name {
	case "aes-256-gcm":
		return SuiteAES256GCM, nil
	case "xchacha20-poly1305":
		return SuiteXChaCha20Poly1305, nil
	}
	return 0, fmt.Errorf("unsupported cipher suite %q", name)
}

func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes-256-gcm"
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	}
	return fmt.Sprintf("suite(%d)", byte(s))
}

func (s Suite) valid() bool {
	return s == SuiteAES256GCM || s == SuiteXChaCha20Poly1305
}

func (s Suite) nonceSize() int {
	if s == SuiteXChaCha20Poly1305 {
		return chacha20poly1305.NonceSizeX
	}
	return 12
}

// aead derives the suite's content key from the master key and builds the
// cipher. Each suite gets its own key so the same master key is never used
// directly by two primitives.
func (s Suite) aead(master keystore.Key) (cipher.AEAD, error) {
	info := []byte("docvault/" + s.String() + "/v1")
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master[:], nil, info), key); err != nil {
		return nil, err
	}

	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	}
	return nil, fmt.Errorf("unsupported cipher suite %d", byte(s))
}

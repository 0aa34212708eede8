package server

import (
	"fmt"
	"math/bits"

	"github.com/docker/go-units"
)

const (
	CipherAES256GCM         = "aes-256-gcm"
	CipherXChaCha20Poly1305 = "xchacha20-poly1305"

	minChunkSize = 4 << 10
	maxChunkSize = 16 << 20
)

type CryptoServerConfig struct {
	Cipher    string `mapstructure:"cipher"     yaml:"cipher"`
	ChunkSize string `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// ChunkSizeBytes parses ChunkSize as a binary size ("1MiB", "64k").
func (c CryptoServerConfig) ChunkSizeBytes() (int, error) {
	n, err := units.RAMInBytes(c.ChunkSize)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c CryptoServerConfig) Validate() error {
	switch c.Cipher {
	case CipherAES256GCM, CipherXChaCha20Poly1305:
	default:
		return fmt.Errorf("unsupported cipher %q", c.Cipher)
	}

	n, err := c.ChunkSizeBytes()
	if err != nil {
		return fmt.Errorf("chunk_size: %w", err)
	}
	if n < minChunkSize || n > maxChunkSize {
		return fmt.Errorf("chunk_size must be between %s and %s",
			units.BytesSize(minChunkSize), units.BytesSize(maxChunkSize))
	}
	if bits.OnesCount(uint(n)) != 1 {
		return fmt.Errorf("chunk_size must be a power of two")
	}
	return nil
}

package keystore

import "crypto/subtle"

const KeySize = 32

// Key is the 256-bit master key. It formats as a redacted placeholder so it
// never ends up in logs by accident.
type Key [KeySize]byte

func (k Key) String() string {
	return "Key(REDACTED)"
}

func (k Key) GoString() string {
	return k.String()
}

// Bytes returns a copy of the key material.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

func (k Key) IsZero() bool {
	return k.Equal(Key{})
}

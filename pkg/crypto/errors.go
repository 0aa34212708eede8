package crypto

import "errors"

var (
	// ErrDecryptionFailed covers every integrity failure: wrong key, bit flips,
	// truncation, reordered or missing records, trailing garbage and
	// malformed headers.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrEncryptionFailed wraps I/O and key errors raised while encrypting.
	ErrEncryptionFailed = errors.New("encryption failed")
)

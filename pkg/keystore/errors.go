package keystore

import "errors"

var (
	// ErrKeyUnavailable is returned when the secure storage backend cannot be
	// reached or is locked. Callers may retry.
	ErrKeyUnavailable = errors.New("master key unavailable")
	// ErrKeyCorrupt is returned when the stored item does not hold a valid key.
	ErrKeyCorrupt = errors.New("master key corrupt")
)

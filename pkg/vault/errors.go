package vault

import (
	"errors"
	"fmt"

	"github.com/mwantia/docvault/pkg/blob"
	"github.com/mwantia/docvault/pkg/db/store"
	"github.com/mwantia/docvault/pkg/keystore"
)

var (
	ErrNotFound              = errors.New("document not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrEncryptedFileNotFound = errors.New("encrypted file not found")
	ErrDuplicate             = errors.New("already exists")
)

// Error describes a failed repository operation on a document.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is transient, such as a locked keychain.
func IsRetryable(err error) bool {
	return errors.Is(err, keystore.ErrKeyUnavailable)
}

func newError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var verr *Error
	if errors.As(err, &verr) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound) && !errors.Is(err, ErrNotFound):
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		err = fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return &Error{Op: op, ID: id, Err: err}
}

func invalid(op, id, format string, args ...any) error {
	return &Error{Op: op, ID: id, Err: fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))}
}

// missingBlob maps a missing ciphertext source to ErrEncryptedFileNotFound.
func missingBlob(err error) error {
	if errors.Is(err, blob.ErrSourceNotFound) {
		return fmt.Errorf("%w: %w", ErrEncryptedFileNotFound, err)
	}
	return err
}

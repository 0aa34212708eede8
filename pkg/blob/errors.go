package blob

import "errors"

var (
	ErrSourceNotFound = errors.New("source file not found")
	ErrOutsideStore   = errors.New("path is outside the blob store")
)

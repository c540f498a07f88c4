package license

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or malformed caller-supplied argument.
	ErrValidation = errors.New("invalid argument")

	// ErrNotAuthorized is returned when a non-admin caller asks for the full listing.
	ErrNotAuthorized = errors.New("not authorized")
)

// StorageError wraps a persistence failure. It is never retried here.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates an insert collided with an existing row
	// (unique-constraint violation).
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrConflict indicates an optimistic-concurrency check failed; the
	// caller should re-fetch and retry.
	ErrConflict = errors.New("repository: conflict")
)

// StorageError wraps transient storage-layer failures (connectivity, query
// execution). The core never retries these itself; it surfaces them to the
// caller tagged with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it is one of the sentinel
// conditions above, which carry meaning of their own.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrConflict) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

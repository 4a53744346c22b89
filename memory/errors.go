package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteFailure matches any failure to persist the document.
	ErrWriteFailure = errors.New("knowledge store write failed")
	// ErrCorruptDocument is the cause recorded when the document on disk cannot be decoded.
	ErrCorruptDocument = errors.New("knowledge store document is corrupt")
	// ErrLocked is returned by Open when another process holds the store.
	ErrLocked = errors.New("knowledge store is locked by another process")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("knowledge store is closed")
	// ErrBackupFailed blocks writes when a corrupt document could not be copied aside.
	ErrBackupFailed = errors.New("corrupt knowledge store could not be backed up, writes are disabled")

	ErrEmptyKey    = errors.New("fact key must not be empty")
	ErrEmptyValue  = errors.New("fact value must not be empty")
	ErrInvalidRole = errors.New("invalid interaction role")
)

// WriteError reports a failed write-through. The in-memory state is kept and
// the next write retries it.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("knowledge store write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrWriteFailure) match every WriteError.
func (e *WriteError) Is(target error) bool {
	return target == ErrWriteFailure
}

// IsWriteFailure checks if an error is a store durability failure.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrWriteFailure)
}

// CorruptionError describes a document that failed to decode at load time.
type CorruptionError struct {
	Path       string
	BackupPath string
	Err        error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrCorruptDocument, e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() []error {
	return []error{ErrCorruptDocument, e.Err}
}

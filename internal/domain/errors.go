package domain

import (
	"errors"
	"fmt"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrWormLocked     = errors.New("worm locked")
	// ErrHoldActive is a WormLock-class refusal: errors.Is(err, ErrWormLocked)
	// holds for it, while errors.Is(err, ErrHoldActive) identifies the hold case.
	ErrHoldActive       = fmt.Errorf("legal hold active: %w", ErrWormLocked)
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrKeyUnknown       = errors.New("key unknown")
	ErrDecryptFailed    = errors.New("decryption failed")
	ErrInvalidEnvelope  = errors.New("invalid envelope format")
	ErrDBUnavailable    = errors.New("db unavailable")
)

// StorageError wraps an I/O or corruption failure with the operation and
// path that produced it. Checksum corruption wraps ErrChecksumMismatch so
// callers can distinguish it from transient I/O.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

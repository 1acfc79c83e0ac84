// Package store implements the content-addressed artifact cache.
//
// This file defines sentinel errors and error wrappers for classifying
// cache failures. These enable callers to use errors.Is/errors.As
// for typed assertions rather than string matching.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Sentinel errors for cache failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the requested blob or index entry does not exist.
	ErrNotFound = errors.New("not found in cache")

	// ErrCorrupted indicates an on-disk blob no longer matches its recorded
	// digest. The store self-heals by evicting the entry; callers surface
	// this as a warning and re-resolve.
	ErrCorrupted = errors.New("cache entry corrupted")

	// ErrPermissionDenied indicates a filesystem permission failure.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDiskFull indicates the cache volume is out of space.
	ErrDiskFull = errors.New("no space left on device")
)

// StoreError wraps an underlying error with cache classification.
// It preserves the original error in the chain for inspection via errors.As.
type StoreError struct {
	// Kind is the sentinel error for classification (e.g. ErrCorrupted).
	Kind error
	// Op is the operation that failed (e.g. "put", "open", "evict").
	Op string
	// Path is the cache path involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// newStoreError creates a classified store error.
func newStoreError(kind error, op, path string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Path: path, Err: err}
}

// wrapFSError classifies a filesystem error for the given operation.
// Returns nil if err is nil.
func wrapFSError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return newStoreError(classifyFSError(err), op, path, err)
}

// classifyFSError maps filesystem errors onto store sentinels.
func classifyFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	default:
		return errors.New("cache i/o error")
	}
}

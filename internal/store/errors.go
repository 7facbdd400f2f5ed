package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrBackendUnavailable means a backend could not be opened.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrNotInitialized is returned by operations on a Local store that has
	// not been initialized or has been disposed.
	ErrNotInitialized = errors.New("local store not initialized")

	// ErrStorageRead matches every *ReadError via errors.Is.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite matches every *WriteError via errors.Is.
	ErrStorageWrite = errors.New("storage write failed")
)

// ReadError reports a failure of the active backend while reading.
type ReadError struct {
	Op  string
	Key string
	Err error
}

func (e *ReadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorageRead) match any ReadError.
func (e *ReadError) Is(target error) bool { return target == ErrStorageRead }

// WriteError reports a failure of the active backend while writing, such as
// a full disk or a read-only medium.
type WriteError struct {
	Op  string
	Key string
	Err error
}

func (e *WriteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorageWrite) match any WriteError.
func (e *WriteError) Is(target error) bool { return target == ErrStorageWrite }

// readErr wraps err as a ReadError unless it is nil, ErrNotFound, or
// already a storage error.
func readErr(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || isStorageErr(err) {
		return err
	}
	return &ReadError{Op: op, Key: key, Err: err}
}

// writeErr wraps err as a WriteError unless it is nil or already a storage error.
func writeErr(op, key string, err error) error {
	if err == nil || isStorageErr(err) {
		return err
	}
	return &WriteError{Op: op, Key: key, Err: err}
}

func isStorageErr(err error) bool {
	return errors.Is(err, ErrStorageRead) || errors.Is(err, ErrStorageWrite)
}

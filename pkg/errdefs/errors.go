// Package errdefs defines the closed set of error kinds surfaced by prism.
//
// Every error returned across a package boundary is one of:
//
//   - *ValidationError: malformed input (planner config, artifact key,
//     compile result). Synchronous, never retried.
//   - *ParseError: the compiler could not produce output from the source.
//     Never cached; the next request retries.
//   - *LockTimeoutError: a cross-process lock was not acquired within its
//     retry budget. Callers fail the request rather than bypass locking.
//   - *StorageError: an I/O failure from the storage collaborator.
//
// Callers match kinds with errors.Is against the sentinels below or extract
// the structured fields with errors.As.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches any *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrParse matches any *ParseError
	ErrParse = errors.New("parse failed")

	// ErrLockTimeout matches any *LockTimeoutError
	ErrLockTimeout = errors.New("lock timeout")

	// ErrStorage matches any *StorageError
	ErrStorage = errors.New("storage failure")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

// Validation creates a ValidationError.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParseError carries the compiler's diagnostic for a source it could not
// transform. Line and Column are 1-based; zero means unknown.
type ParseError struct {
	Resource string
	Line     int
	Column   int
	Message  string
	// Data holds compiler specific diagnostic fields.
	Data map[string]any
}

func (e *ParseError) Error() string {
	loc := e.Resource
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Resource, e.Line, e.Column)
	}
	if loc == "" {
		return "parse error: " + e.Message
	}
	return fmt.Sprintf("parse error: %s: %s", loc, e.Message)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// LockTimeoutError reports an exhausted lock retry budget.
type LockTimeoutError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *LockTimeoutError) Error() string {
	msg := fmt.Sprintf("lock timeout: %s not acquired after %d attempts", e.Key, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

func (e *LockTimeoutError) Unwrap() error {
	return e.Err
}

// StorageError wraps an I/O failure with the operation and path involved.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

// Storage wraps err as a StorageError. A nil err returns nil; an err that
// already is a StorageError is returned unchanged.
func Storage(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

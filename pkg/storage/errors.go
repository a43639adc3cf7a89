package storage

import "errors"

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidPath is returned for keys that are empty, absolute or escape the root
	ErrInvalidPath = errors.New("storage: invalid path")
)

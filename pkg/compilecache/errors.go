package compilecache

import "errors"

var (
	// ErrMetaNotFound is returned when an artifact has no readable meta record
	ErrMetaNotFound = errors.New("meta not found")
	// ErrSourceNotFound is returned when a compiler needs a resource that does not exist
	ErrSourceNotFound = errors.New("source not found")
)

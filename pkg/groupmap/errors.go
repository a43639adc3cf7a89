package groupmap

import "errors"

var (
	// ErrNoGroup is returned when no group serves a runtime
	ErrNoGroup = errors.New("no group for runtime")
)

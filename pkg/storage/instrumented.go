package storage

import (
	"context"
	"errors"
	"time"
)

// Recorder receives one call per storage operation.
type Recorder interface {
	RecordStorageOperation(operation, backend, status string)
}

// Instrumented reports every operation of the wrapped Storage to a Recorder.
type Instrumented struct {
	inner    Storage
	backend  string
	recorder Recorder
}

// WithRecorder wraps s. A nil recorder returns s unchanged.
func WithRecorder(s Storage, backend string, recorder Recorder) Storage {
	if recorder == nil {
		return s
	}
	return &Instrumented{inner: s, backend: backend, recorder: recorder}
}

func (i *Instrumented) record(op string, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.recorder.RecordStorageOperation(op, i.backend, status)
}

// Read implements Storage.Read
func (i *Instrumented) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := i.inner.Read(ctx, key)
	i.record("read", err)
	return data, err
}

// Write implements Storage.Write
func (i *Instrumented) Write(ctx context.Context, key string, data []byte) error {
	err := i.inner.Write(ctx, key, data)
	i.record("write", err)
	return err
}

// Exists implements Storage.Exists
func (i *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := i.inner.Exists(ctx, key)
	i.record("exists", err)
	return ok, err
}

// ModTime implements Storage.ModTime
func (i *Instrumented) ModTime(ctx context.Context, key string) (time.Time, error) {
	t, err := i.inner.ModTime(ctx, key)
	i.record("mtime", err)
	return t, err
}

// Remove implements Storage.Remove
func (i *Instrumented) Remove(ctx context.Context, key string) error {
	err := i.inner.Remove(ctx, key)
	i.record("remove", err)
	return err
}

// List implements Storage.List
func (i *Instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := i.inner.List(ctx, prefix)
	i.record("list", err)
	return keys, err
}

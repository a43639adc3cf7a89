package storage

import (
	"context"
	"sort"
	"time"
)

// Overlay routes keys under a prefix to one Storage and every other key to
// a base Storage. Keys keep their full path in both backends, so relative
// references between the two halves stay valid.
type Overlay struct {
	prefix string
	cache  Storage
	base   Storage
}

// NewOverlay routes keys under prefix to cache and the rest to base.
func NewOverlay(prefix string, cache, base Storage) (*Overlay, error) {
	cleaned, err := CleanKey(prefix)
	if err != nil {
		return nil, err
	}
	return &Overlay{prefix: cleaned, cache: cache, base: base}, nil
}

func (o *Overlay) route(key string) (Storage, string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, "", err
	}
	if hasPrefix(cleaned, o.prefix) {
		return o.cache, cleaned, nil
	}
	return o.base, cleaned, nil
}

// Read implements Storage.Read
func (o *Overlay) Read(ctx context.Context, key string) ([]byte, error) {
	s, key, err := o.route(key)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, key)
}

// Write implements Storage.Write
func (o *Overlay) Write(ctx context.Context, key string, data []byte) error {
	s, key, err := o.route(key)
	if err != nil {
		return err
	}
	return s.Write(ctx, key, data)
}

// Exists implements Storage.Exists
func (o *Overlay) Exists(ctx context.Context, key string) (bool, error) {
	s, key, err := o.route(key)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, key)
}

// ModTime implements Storage.ModTime
func (o *Overlay) ModTime(ctx context.Context, key string) (time.Time, error) {
	s, key, err := o.route(key)
	if err != nil {
		return time.Time{}, err
	}
	return s.ModTime(ctx, key)
}

// Remove implements Storage.Remove
func (o *Overlay) Remove(ctx context.Context, key string) error {
	s, key, err := o.route(key)
	if err != nil {
		return err
	}
	return s.Remove(ctx, key)
}

// List implements Storage.List. Listing a prefix that spans both backends
// merges their results.
func (o *Overlay) List(ctx context.Context, prefix string) ([]string, error) {
	cleaned, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	if cleaned != "" && hasPrefix(cleaned, o.prefix) {
		return o.cache.List(ctx, cleaned)
	}

	baseKeys, err := o.base.List(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(baseKeys))
	for _, k := range baseKeys {
		if !hasPrefix(k, o.prefix) {
			keys = append(keys, k)
		}
	}
	if hasPrefix(o.prefix, cleaned) {
		cacheKeys, err := o.cache.List(ctx, o.prefix)
		if err != nil {
			return nil, err
		}
		keys = append(keys, cacheKeys...)
	}
	sort.Strings(keys)
	return keys, nil
}

package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Storage is a flat key/value view over a directory tree. Keys are slash
// separated paths relative to the storage root.
type Storage interface {
	// Read returns the bytes stored at key, or ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)
	// Write stores data at key, creating parent directories as needed
	Write(ctx context.Context, key string, data []byte) error
	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)
	// ModTime returns the last modification time of key, or ErrNotFound
	ModTime(ctx context.Context, key string) (time.Time, error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// List returns every key under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config for storage backends
type Config struct {
	Type string // "filesystem" or "s3"

	// Root is the project directory; every key resolves relative to it
	Root string

	// CachePrefix routes cache records (content, assets, meta) to the
	// cache backend when Type is s3 or Compress is set
	CachePrefix string

	// Compress stores cache records zstd compressed
	Compress bool

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3Prefix       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:        "filesystem",
		Root:        ".",
		CachePrefix: ".prism",
		S3Region:    "us-east-1",
	}
}

// New builds the storage stack described by cfg: a filesystem rooted at
// cfg.Root, with cache records optionally moved to S3 and compressed.
func New(ctx context.Context, cfg Config) (Storage, error) {
	base, err := NewFileSystemStorage(cfg.Root)
	if err != nil {
		return nil, err
	}

	var cache Storage
	switch cfg.Type {
	case "", "filesystem":
		if !cfg.Compress {
			return base, nil
		}
		cache = base
	case "s3":
		s3s, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cache = s3s
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if cfg.Compress {
		cache = NewCompressedStorage(cache)
	}
	return NewOverlay(cfg.CachePrefix, cache, base)
}

// CleanKey normalizes key and rejects keys that are empty, absolute or
// escape the root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return cleaned, nil
}

// cleanPrefix is CleanKey for list prefixes, where the root itself is allowed.
func cleanPrefix(prefix string) (string, error) {
	if prefix == "" || prefix == "." {
		return "", nil
	}
	return CleanKey(prefix)
}

// hasPrefix reports whether key lies under the directory prefix.
func hasPrefix(key, prefix string) bool {
	return prefix == "" || key == prefix || strings.HasPrefix(key, prefix+"/")
}

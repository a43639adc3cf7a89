// Package storage provides the byte-level persistence used by the compile
// cache.
//
// # Overview
//
// Every backend implements Storage, a flat key/value view over a directory
// tree. Keys are slash separated and relative to the storage root (the
// project directory), so a record can reference another record by relative
// path regardless of the backend holding it.
//
// # Backends
//
// FileSystemStorage stores keys as files below a root directory. Writes go
// through a temporary file and a rename.
//
//	fs, err := storage.NewFileSystemStorage("/srv/app")
//
// S3Storage stores keys as objects in a bucket, optionally below a key
// prefix. Static credentials are used when configured, otherwise the default
// AWS credential chain.
//
// # Decorators
//
//   - CompressedStorage: zstd compresses values on write
//   - Overlay: routes one key prefix (the cache directory) to another backend
//   - Instrumented: reports operation outcomes to a metrics Recorder
//
// New assembles the usual stack from a Config: source files are always read
// from the local project directory, cache records go to the configured
// backend.
//
//	store, err := storage.New(ctx, storage.Config{
//		Type:        "s3",
//		Root:        ".",
//		CachePrefix: ".prism",
//		S3Bucket:    "build-cache",
//		Compress:    true,
//	})
//
// # Errors
//
// Missing keys return ErrNotFound. Malformed keys return ErrInvalidPath.
// Other I/O failures are wrapped as *errdefs.StorageError.
package storage

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

// FileSystemStorage implements the Storage interface using the local filesystem
type FileSystemStorage struct {
	rootDir string
}

// NewFileSystemStorage creates a new filesystem-based storage
func NewFileSystemStorage(rootDir string) (*FileSystemStorage, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStorage{rootDir: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileSystemStorage) Root() string {
	return s.rootDir
}

// Path returns the absolute filesystem path of key.
func (s *FileSystemStorage) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(cleaned)), nil
}

// Read implements Storage.Read
func (s *FileSystemStorage) Read(_ context.Context, key string) ([]byte, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, errdefs.Storage("read", key, err)
	}
	return data, nil
}

// Write implements Storage.Write. The file is written to a temporary name
// and renamed into place so readers never observe a partial record.
func (s *FileSystemStorage) Write(_ context.Context, key string, data []byte) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	tmp, err := createTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return errdefs.Storage("write", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errdefs.Storage("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errdefs.Storage("write", key, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errdefs.Storage("chmod", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return errdefs.Storage("rename", key, err)
	}
	return nil
}

// createTempAttempts bounds how often createTemp recreates a directory that
// a concurrent Remove pruned before the temp file landed in it.
const createTempAttempts = 5

// createTemp creates a temp file in dir, creating dir first. Once the temp
// file exists dir is non-empty and Remove can no longer prune it.
func createTemp(dir, pattern string) (*os.File, error) {
	var err error
	for i := 0; i < createTempAttempts; i++ {
		var f *os.File
		if err = os.MkdirAll(dir, 0755); err == nil {
			f, err = os.CreateTemp(dir, pattern)
			if err == nil {
				return f, nil
			}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, err
}

// Exists implements Storage.Exists
func (s *FileSystemStorage) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errdefs.Storage("stat", key, err)
	}
	return !info.IsDir(), nil
}

// ModTime implements Storage.ModTime
func (s *FileSystemStorage) ModTime(_ context.Context, key string) (time.Time, error) {
	p, err := s.Path(key)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return time.Time{}, errdefs.Storage("stat", key, err)
	}
	return info.ModTime(), nil
}

// Remove implements Storage.Remove. Empty parent directories are pruned up
// to the root.
func (s *FileSystemStorage) Remove(_ context.Context, key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errdefs.Storage("remove", key, err)
	}
	for dir := filepath.Dir(p); dir != s.rootDir && len(dir) > len(s.rootDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// List implements Storage.List
func (s *FileSystemStorage) List(_ context.Context, prefix string) ([]string, error) {
	cleaned, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	start := s.rootDir
	if cleaned != "" {
		start = filepath.Join(s.rootDir, filepath.FromSlash(cleaned))
	}

	var keys []string
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.rootDir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errdefs.Storage("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

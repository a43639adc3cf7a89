package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/platinummonkey/prism/pkg/storage"
)

// LockSuffix is appended to a key to name its lock file.
const LockSuffix = ".lock"

// FileLocker locks keys with a lock file below a root directory.
type FileLocker struct {
	root string
}

// NewFileLocker creates a locker placing lock files below root.
func NewFileLocker(root string) *FileLocker {
	return &FileLocker{root: root}
}

// Path returns the lock file path for key.
func (l *FileLocker) Path(key string) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)+LockSuffix), nil
}

// Acquire implements Locker.Acquire
func (l *FileLocker) Acquire(ctx context.Context, key string, opts RetryOptions) (func() error, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, err
	}
	var held *lockFile
	err = retry(ctx, key, opts, func() (bool, error) {
		lf, ok, err := tryLockFileIn(p)
		if err != nil {
			return false, fmt.Errorf("failed to lock %s: %w", p, err)
		}
		held = lf
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	var releaseErr error
	return func() error {
		once.Do(func() { releaseErr = held.unlock() })
		return releaseErr
	}, nil
}

// tryLockFileIn creates the directory of path before locking it. The
// directory is recreated when a concurrent storage remove pruned it in
// between.
func tryLockFileIn(path string) (*lockFile, bool, error) {
	var err error
	for i := 0; i < 3; i++ {
		if err = os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			var lf *lockFile
			var ok bool
			if lf, ok, err = tryLockFile(path); err == nil {
				return lf, ok, nil
			}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, err
		}
	}
	return nil, false, err
}

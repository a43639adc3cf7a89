//go:build !unix

package lock

import (
	"errors"
	"io/fs"
	"os"
)

type lockFile struct {
	path string
}

// tryLockFile creates path exclusively. A crashed holder leaves the file
// behind and must be cleaned up by hand.
func tryLockFile(path string) (*lockFile, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := f.Close(); err != nil {
		return nil, false, err
	}
	return &lockFile{path: path}, true, nil
}

func (l *lockFile) unlock() error {
	return os.Remove(l.path)
}

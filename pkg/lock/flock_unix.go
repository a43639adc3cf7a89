//go:build unix

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

type lockFile struct {
	f *os.File
}

// tryLockFile takes a non-blocking exclusive flock on path. The lock file
// is left in place on release.
func tryLockFile(path string) (*lockFile, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &lockFile{f: f}, true, nil
}

func (l *lockFile) unlock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return errors.Join(err, l.f.Close())
}

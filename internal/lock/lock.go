// Package lock guards an update run with an exclusive advisory file lock.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/conn-castle/patchmirror/internal/messages"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New(messages.LockHeld)

var flockFn = unix.Flock

// FileLock is a held lock. Release it with Release.
type FileLock struct {
	file *os.File
}

// TryAcquire opens or creates path and takes an exclusive lock without
// waiting. It returns ErrLocked when the lock is held elsewhere.
func TryAcquire(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf(messages.LockOpenFmt, path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf(messages.LockOpenFmt, path, err)
	}
	if err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf(messages.LockAcquireFmt, path, err)
	}
	return &FileLock{file: file}, nil
}

// Release unlocks and closes the lock file. The file itself is left in
// place; its presence alone does not mean the lock is held.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockFn(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}

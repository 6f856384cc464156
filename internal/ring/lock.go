package ring

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrLockWouldBlock is returned by TryLock when another process already
// holds the lock.
var ErrLockWouldBlock = errors.New("ring lock would block")

// FileLock is a cross-process advisory lock backed by flock(2) on a
// dedicated lock file. WriteFrame holds it exclusively for its whole
// metadata mutation and payload copy; readers hold it shared around each
// generation read. Segment creation takes no lock.
type FileLock struct {
	file *os.File
}

// Lock opens (creating if needed) the lock file at path and blocks until an
// exclusive lock is acquired.
func Lock(path string) (*FileLock, error) {
	return lock(path, syscall.LOCK_EX)
}

// RLock opens (creating if needed) the lock file at path and blocks until a
// shared lock is acquired.
func RLock(path string) (*FileLock, error) {
	return lock(path, syscall.LOCK_SH)
}

// TryLock attempts to acquire an exclusive lock without blocking, returning
// ErrLockWouldBlock if another process holds it.
func TryLock(path string) (*FileLock, error) {
	return lock(path, syscall.LOCK_EX|syscall.LOCK_NB)
}

func lock(path string, how int) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ring lock file: %w", err)
	}
	if err := flockRetryEINTR(int(f.Fd()), how); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrLockWouldBlock
		}
		return nil, fmt.Errorf("flock ring lock file: %w", err)
	}
	return &FileLock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file descriptor. It is
// safe to call multiple times.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := flockRetryEINTR(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlocking ring lock file: %w", unlockErr)
	}
	return closeErr
}

// flockRetryEINTR wraps flock, retrying on EINTR the way a signal-interrupted
// blocking syscall requires.
func flockRetryEINTR(fd, how int) error {
	const maxEINTRRetries = 10000
	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = syscall.Flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}
	return err
}

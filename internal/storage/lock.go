package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock serializes writers to one file, across goroutines via a mutex and
// across processes via flock on path+".lock".
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a new file lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock acquires an exclusive lock, blocking until it is available.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return err
	}
	l.file = f
	return nil
}

// Unlock releases the lock. The lock file stays in place: removing it would
// let another process lock a fresh file at the same path while a waiter
// still holds the old one.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()

	l.file = nil
	l.mu.Unlock()
	return nil
}

// Package storage provides file-backed JSON and blob storage with atomic writes.
//
// Keys are path slices relative to a base directory. JSON documents live at
// <base>/<a>/<b>.json; raw blobs at <base>/<a>/<b>. Every write takes an
// exclusive flock on a sibling .lock file, writes a .tmp file and renames it
// into place, so readers never observe a partial document.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage provides file-based storage rooted at a base directory.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a new Storage instance.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// BasePath returns the storage root.
func (s *Storage) BasePath() string {
	return s.basePath
}

// Path returns the file path of the JSON document at path.
func (s *Storage) Path(path []string) string {
	return s.dir(path) + ".json"
}

func (s *Storage) dir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get reads the JSON document at path into v.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	data, err := s.read(ctx, s.Path(path))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// Put stores v as indented JSON at path.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	return s.write(ctx, s.Path(path), data, 0644)
}

// ReadBlob reads the raw file at path.
func (s *Storage) ReadBlob(ctx context.Context, path []string) ([]byte, error) {
	return s.read(ctx, s.dir(path))
}

// WriteBlob atomically writes raw bytes at path with owner-only permissions.
func (s *Storage) WriteBlob(ctx context.Context, path []string, data []byte) error {
	return s.write(ctx, s.dir(path), data, 0600)
}

func (s *Storage) read(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *Storage) write(ctx context.Context, filePath string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// RemoveDir deletes the directory at path and everything below it.
func (s *Storage) RemoveDir(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("refusing to remove storage root")
	}
	if err := os.RemoveAll(s.dir(path)); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	return nil
}

// BlobExists checks if the raw file at path exists.
func (s *Storage) BlobExists(ctx context.Context, path []string) bool {
	_, err := os.Stat(s.dir(path))
	return err == nil
}

// ModTime returns the modification time of the JSON document at path.
func (s *Storage) ModTime(ctx context.Context, path []string) (time.Time, error) {
	info, err := os.Stat(s.Path(path))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}

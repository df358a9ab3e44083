package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type testData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStorage_PutAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}
	if err := s.Put(ctx, []string{"items", "item1"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "items", "item1.json")); err != nil {
		t.Fatalf("file was not created: %v", err)
	}

	var got testData
	if err := s.Get(ctx, []string{"items", "item1"}, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != data {
		t.Errorf("got %+v, want %+v", got, data)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var got testData
	err := s.Get(context.Background(), []string{"missing"}, &got)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_GetCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	os.WriteFile(filepath.Join(tmpDir, "bad.json"), []byte("{not json"), 0644)

	var got testData
	err := s.Get(context.Background(), []string{"bad"}, &got)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestStorage_CanceledContext(t *testing.T) {
	s := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, []string{"x"}, testData{}); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestStorage_Blobs(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"sessions", "s1", "store.db"}

	if s.BlobExists(ctx, path) {
		t.Fatal("blob should not exist yet")
	}
	if err := s.WriteBlob(ctx, path, []byte("creds")); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	got, err := s.ReadBlob(ctx, path)
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if string(got) != "creds" {
		t.Errorf("got %q", got)
	}

	info, _ := os.Stat(filepath.Join(s.BasePath(), "sessions", "s1", "store.db"))
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	if err := s.RemoveDir(ctx, []string{"sessions", "s1"}); err != nil {
		t.Fatalf("RemoveDir failed: %v", err)
	}
	if s.BlobExists(ctx, path) {
		t.Error("blob should be gone")
	}
	if err := s.RemoveDir(ctx, nil); err == nil {
		t.Error("expected refusal to remove root")
	}
}

func TestStorage_ModTime(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if _, err := s.ModTime(ctx, []string{"cfg"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	s.Put(ctx, []string{"cfg"}, testData{})
	mt, err := s.ModTime(ctx, []string{"cfg"})
	if err != nil || mt.IsZero() {
		t.Errorf("expected mod time, got %v, %v", mt, err)
	}
}

func TestStorage_ConcurrentPut(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Put(ctx, []string{"shared"}, testData{Value: i}); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var got testData
	if err := s.Get(ctx, []string{"shared"}, &got); err != nil {
		t.Fatalf("Get failed after concurrent puts: %v", err)
	}
	if _, err := os.Stat(s.Path([]string{"shared"}) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	first := NewFileLock(path)
	second := NewFileLock(path)

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := second.Lock(); err != nil {
			t.Errorf("second Lock failed: %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("lock file must survive Unlock: %v", err)
	}

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the lock")
	}

	// A third holder must contend on the same file the second one holds.
	third := NewFileLock(path)
	locked := make(chan struct{})
	go func() {
		third.Lock()
		close(locked)
	}()
	select {
	case <-locked:
		t.Fatal("third holder acquired the lock while the second held it")
	case <-time.After(50 * time.Millisecond):
	}
	second.Unlock()
	<-locked
	third.Unlock()
}

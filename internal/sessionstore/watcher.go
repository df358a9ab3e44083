package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of events produced by one atomic write.
const DefaultDebounce = 100 * time.Millisecond

// Watcher observes the config file's directory and refreshes the store when
// the file changes. The directory is watched rather than the file because
// atomic renames replace the inode.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	file     string
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher for store's config file.
func NewWatcher(store *Store) (*Watcher, error) {
	path := store.Path()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		store:    store,
		watcher:  w,
		file:     filepath.Base(path),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.store.Refresh(context.Background())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Stop stops the watcher and waits for it to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

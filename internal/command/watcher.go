package command

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/telnet2/wamux/internal/event"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a registry when its manifest directory changes.
type Watcher struct {
	registry *Registry
	bus      *event.Bus
	watcher  *fsnotify.Watcher
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher watches the registry's directory and all of its subdirectories.
// bus may be nil.
func NewWatcher(registry *Registry, bus *event.Bus) (*Watcher, error) {
	if err := os.MkdirAll(registry.Dir(), 0755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		registry: registry,
		bus:      bus,
		watcher:  fw,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(registry.Dir()); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
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
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
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
			res := w.registry.Reload()
			if w.bus != nil {
				w.bus.PublishSync(event.Event{
					Type: event.CommandsReloaded,
					Data: event.CommandsReloadedData{Count: res.Count, Skipped: res.Skipped},
				})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.registry.log.Error().Err(err).Msg("command watcher error")
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

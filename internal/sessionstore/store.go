// Package sessionstore persists the list of session descriptors and detects
// edits made to it from outside the process.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/pkg/types"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidPrefix   = errors.New("invalid prefix")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidNumber   = errors.New("invalid number")
	ErrInvalidName     = errors.New("invalid session name")
	// ErrCorruptConfig is returned by mutations while the file on disk cannot
	// be parsed, so a write never replaces sessions it could not read.
	ErrCorruptConfig = errors.New("session config is corrupt")
)

var (
	prefixPattern = regexp.MustCompile("^[!@#$%^&*()_+\\-=\\[\\]{};':\"\\\\|,.<>/?~`a-zA-Z0-9]{1,3}$")
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

// key is the storage key of the config document (<data>/config.json).
var key = []string{"config"}

// Store is the session configuration store. Reads are served from an
// in-memory snapshot that is refreshed whenever the file's modification time
// changes; writes re-read the file, apply the change and replace it atomically.
type Store struct {
	storage *storage.Storage
	bus     *event.Bus
	log     zerolog.Logger

	mu      sync.RWMutex
	cfg     *types.Config
	modTime time.Time
	corrupt bool
}

// New creates a store backed by st. bus may be nil.
func New(st *storage.Storage, bus *event.Bus) *Store {
	return &Store{
		storage: st,
		bus:     bus,
		log:     logging.Component("sessionstore"),
		cfg:     types.DefaultConfig(),
	}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.storage.Path(key)
}

// Load reads the config file. A missing or unparsable file yields the
// default config; the failure is logged, never returned. Differences from the
// previous snapshot are published as ConfigChanged.
func (s *Store) Load(ctx context.Context) *types.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	cfg := s.loadLocked(ctx)
	if !s.corrupt {
		s.publishDiff(prev, cfg)
	}
	return cfg.Clone()
}

// loadLocked re-reads the file. While the file is corrupt the last good
// snapshot keeps serving lookups and the default config is returned.
func (s *Store) loadLocked(ctx context.Context) *types.Config {
	modTime, _ := s.storage.ModTime(ctx, key)
	s.modTime = modTime

	var cfg types.Config
	err := s.storage.Get(ctx, key, &cfg)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.cfg, s.corrupt = types.DefaultConfig(), false
	case err != nil:
		s.log.Error().Err(err).Str("path", s.Path()).Msg("cannot parse session config, using defaults")
		s.corrupt = true
		return types.DefaultConfig()
	default:
		if cfg.Sessions == nil {
			cfg.Sessions = []types.SessionDescriptor{}
		}
		if cfg.BotName == "" {
			cfg.BotName = types.DefaultBotName
		}
		s.cfg, s.corrupt = &cfg, false
	}
	return s.cfg
}

// Save validates, normalizes and atomically writes cfg.
func (s *Store) Save(ctx context.Context, cfg *types.Config) error {
	cfg = cfg.Clone()
	if err := Normalize(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(ctx, s.cfg, cfg)
}

// putLocked writes cfg and publishes its difference from prev, the snapshot
// held before the write's own re-read, so external edits absorbed by that
// re-read are still reported.
func (s *Store) putLocked(ctx context.Context, prev, cfg *types.Config) error {
	if err := s.storage.Put(ctx, key, cfg); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}
	s.cfg, s.corrupt = cfg, false
	s.modTime, _ = s.storage.ModTime(ctx, key)
	s.publishDiff(prev, cfg)
	return nil
}

// Snapshot returns a copy of the current config, re-reading the file first
// if it was modified since the last read.
func (s *Store) Snapshot(ctx context.Context) *types.Config {
	s.Refresh(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Refresh re-reads the file if its modification time changed and reports
// whether the content changed. Content changes are published as ConfigChanged.
func (s *Store) Refresh(ctx context.Context) bool {
	modTime, err := s.storage.ModTime(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false
	}

	s.mu.RLock()
	unchanged := modTime.Equal(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	next := s.loadLocked(ctx)
	if s.corrupt || reflect.DeepEqual(prev, next) {
		return false
	}
	s.log.Info().Str("path", s.Path()).Msg("session config changed on disk")
	s.publishDiff(prev, next)
	return true
}

func (s *Store) publishDiff(prev, next *types.Config) {
	if s.bus == nil || reflect.DeepEqual(prev, next) {
		return
	}
	added, removed := Diff(prev, next)
	s.bus.Publish(event.Event{
		Type: event.ConfigChanged,
		Data: event.ConfigChangedData{Config: next.Clone(), Added: added, Removed: removed},
	})
}

// Diff returns the session names present only in next (added) and only in prev (removed).
func Diff(prev, next *types.Config) (added, removed []string) {
	before := make(map[string]bool)
	for _, d := range prev.Sessions {
		before[d.Name] = true
	}
	after := make(map[string]bool)
	for _, d := range next.Sessions {
		after[d.Name] = true
		if !before[d.Name] {
			added = append(added, d.Name)
		}
	}
	for _, d := range prev.Sessions {
		if !after[d.Name] {
			removed = append(removed, d.Name)
		}
	}
	return added, removed
}

// FindByName returns the descriptor with the given name.
func (s *Store) FindByName(ctx context.Context, name string) (types.SessionDescriptor, bool) {
	for _, d := range s.Snapshot(ctx).Sessions {
		if d.Name == name {
			return d, true
		}
	}
	return types.SessionDescriptor{}, false
}

// FindBySessionID returns the descriptor whose sessionId (or name, when no
// sessionId is set) equals id.
func (s *Store) FindBySessionID(ctx context.Context, id string) (types.SessionDescriptor, bool) {
	for _, d := range s.Snapshot(ctx).Sessions {
		if d.ID() == id {
			return d, true
		}
	}
	return types.SessionDescriptor{}, false
}

// FindByOwnerOrSudo returns the first descriptor owned by number or listing
// it as sudo.
func (s *Store) FindByOwnerOrSudo(ctx context.Context, number string) (types.SessionDescriptor, bool) {
	n := identity.NormalizeNumber(number)
	if n == "" {
		return types.SessionDescriptor{}, false
	}
	for _, d := range s.Snapshot(ctx).Sessions {
		if identity.NormalizeNumber(d.OwnerNumber) == n {
			return d, true
		}
		for _, sudo := range d.Sudo {
			if identity.NormalizeNumber(sudo) == n {
				return d, true
			}
		}
	}
	return types.SessionDescriptor{}, false
}

// mutate applies fn to the named descriptor of a fresh read of the file and
// writes the result if fn reports a change.
func (s *Store) mutate(ctx context.Context, name string, fn func(d *types.SessionDescriptor) (bool, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	cfg := s.loadLocked(ctx).Clone()
	if s.corrupt {
		return false, ErrCorruptConfig
	}
	i := slices.IndexFunc(cfg.Sessions, func(d types.SessionDescriptor) bool { return d.Name == name })
	if i < 0 {
		s.publishDiff(prev, s.cfg)
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	changed, err := fn(&cfg.Sessions[i])
	if err != nil || !changed {
		s.publishDiff(prev, s.cfg)
		return false, err
	}
	if err := s.putLocked(ctx, prev, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// SetPrefix changes the command prefix of a session.
func (s *Store) SetPrefix(ctx context.Context, name, prefix string) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}
	_, err := s.mutate(ctx, name, func(d *types.SessionDescriptor) (bool, error) {
		if d.Prefix == prefix {
			return false, nil
		}
		d.Prefix = prefix
		return true, nil
	})
	return err
}

// SetMode changes the access mode of a session.
func (s *Store) SetMode(ctx context.Context, name, mode string) error {
	if err := ValidateMode(mode); err != nil {
		return err
	}
	_, err := s.mutate(ctx, name, func(d *types.SessionDescriptor) (bool, error) {
		if d.EffectiveMode() == mode && d.Mode != "" {
			return false, nil
		}
		d.Mode = mode
		return true, nil
	})
	return err
}

// AddSudo adds number to the session's sudo list. It reports false without
// error when number is the owner or already listed.
func (s *Store) AddSudo(ctx context.Context, name, number string) (bool, error) {
	n := identity.NormalizeNumber(number)
	if err := ValidateSudoNumber(n); err != nil {
		return false, err
	}
	return s.mutate(ctx, name, func(d *types.SessionDescriptor) (bool, error) {
		if n == identity.NormalizeNumber(d.OwnerNumber) || slices.ContainsFunc(d.Sudo, sameNumber(n)) {
			return false, nil
		}
		d.Sudo = append(d.Sudo, n)
		return true, nil
	})
}

// RemoveSudo removes number from the session's sudo list and reports whether
// it was present. Entries are compared after normalization, so a number
// written by hand in another format is removed too.
func (s *Store) RemoveSudo(ctx context.Context, name, number string) (bool, error) {
	n := identity.NormalizeNumber(number)
	if n == "" {
		return false, ErrInvalidNumber
	}
	return s.mutate(ctx, name, func(d *types.SessionDescriptor) (bool, error) {
		before := len(d.Sudo)
		d.Sudo = slices.DeleteFunc(d.Sudo, sameNumber(n))
		return len(d.Sudo) < before, nil
	})
}

// sameNumber matches sudo entries equal to the normalized number n.
func sameNumber(n string) func(string) bool {
	return func(entry string) bool {
		return identity.NormalizeNumber(entry) == n
	}
}

// Upsert adds desc, or replaces the descriptor with the same name.
func (s *Store) Upsert(ctx context.Context, desc types.SessionDescriptor) error {
	desc = desc.Clone()
	if err := NormalizeDescriptor(&desc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	cfg := s.loadLocked(ctx).Clone()
	if s.corrupt {
		return ErrCorruptConfig
	}
	if i := slices.IndexFunc(cfg.Sessions, func(d types.SessionDescriptor) bool { return d.Name == desc.Name }); i >= 0 {
		cfg.Sessions[i] = desc
	} else {
		cfg.Sessions = append(cfg.Sessions, desc)
	}
	return s.putLocked(ctx, prev, cfg)
}

// Remove deletes the named descriptor and reports whether it existed.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	cfg := s.loadLocked(ctx).Clone()
	if s.corrupt {
		return false, ErrCorruptConfig
	}
	i := slices.IndexFunc(cfg.Sessions, func(d types.SessionDescriptor) bool { return d.Name == name })
	if i < 0 {
		s.publishDiff(prev, s.cfg)
		return false, nil
	}
	cfg.Sessions = slices.Delete(cfg.Sessions, i, i+1)
	if err := s.putLocked(ctx, prev, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// Package supervisor runs one connection loop per configured session.
//
// Each session moves through starting, awaiting_auth, connected,
// disconnected and reconnecting. The loop owns retries: a lost connection
// waits out an exponential backoff and opens a new client. A sweep removes
// sessions that stayed disconnected longer than the disconnect timeout,
// deleting their configuration entry and credentials.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/config"
	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/dispatch"
	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/permission"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// ErrShutdown is returned by Start after Shutdown.
var ErrShutdown = errors.New("supervisor is shut down")

// Removal reasons reported in session.removed events.
const (
	ReasonStopped = "stopped"
	ReasonTimeout = "disconnect_timeout"
	ReasonDeleted = "deleted"
)

// MessageHandler receives inbound messages. Calls for one session are
// sequential.
type MessageHandler interface {
	Dispatch(ctx context.Context, client transport.Client, sessionName string, msg *types.Message) dispatch.Outcome
}

// Options configure a Supervisor.
type Options struct {
	Settings  *config.Settings
	Store     *sessionstore.Store
	Factory   transport.Factory
	Handler   MessageHandler
	Bootstrap *credential.Bootstrap
	// Cache and Bus are optional.
	Cache *permission.GroupCache
	Bus   *event.Bus
}

// Supervisor manages the set of running sessions.
type Supervisor struct {
	settings  *config.Settings
	store     *sessionstore.Store
	factory   transport.Factory
	handler   MessageHandler
	bootstrap *credential.Bootstrap
	cache     *permission.GroupCache
	bus       *event.Bus
	log       zerolog.Logger
	now       func() time.Time
	started   time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	runners map[string]*runner
	closed  bool

	syncMu      sync.Mutex
	unsubscribe func()
	sweepStop   chan struct{}
	sweepDone   chan struct{}
}

// New creates a supervisor. No session runs until StartAll or Start.
func New(opts Options) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	settings := opts.Settings
	if settings == nil {
		settings = config.Default()
	}
	return &Supervisor{
		settings:   settings,
		store:      opts.Store,
		factory:    opts.Factory,
		handler:    opts.Handler,
		bootstrap:  opts.Bootstrap,
		cache:      opts.Cache,
		bus:        opts.Bus,
		log:        logging.Component("supervisor"),
		now:        time.Now,
		started:    time.Now(),
		baseCtx:    ctx,
		baseCancel: cancel,
		runners:    make(map[string]*runner),
	}
}

// StartAll starts every configured session, begins the disconnect sweep and
// follows config.changed events.
func (s *Supervisor) StartAll(ctx context.Context) error {
	cfg := s.store.Load(ctx)
	if _, _, err := s.Sync(ctx, cfg); err != nil {
		return err
	}

	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(event.ConfigChanged, func(event.Event) {
			// Events are delivered asynchronously; the store's current
			// snapshot is authoritative over the one carried by the event.
			if _, _, err := s.Sync(s.baseCtx, s.store.Snapshot(s.baseCtx)); err != nil && !errors.Is(err, ErrShutdown) {
				s.log.Error().Err(err).Msg("config sync failed")
			}
		})
	}

	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweepLoop(s.settings.SweepInterval.Std())
	return nil
}

// Start launches the session's loop. Starting a session that is already
// active is a no-op.
func (s *Supervisor) Start(ctx context.Context, desc types.SessionDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := s.runners[desc.Name]; ok {
		s.mu.Unlock()
		return nil
	}
	r := newRunner(desc, s.now())
	runCtx, cancel := context.WithCancel(s.baseCtx)
	r.cancel = cancel
	s.runners[desc.Name] = r
	s.mu.Unlock()

	s.log.Info().Str("session", desc.Name).Msg("starting session")
	s.publishState(desc.Name, "", r.snapshot())
	go s.run(runCtx, r)
	return nil
}

// Stop stops the session's loop and forgets it. It reports whether the
// session was running. Stopping an unknown session is a no-op.
func (s *Supervisor) Stop(name string) bool {
	return s.stop(name, ReasonStopped)
}

func (s *Supervisor) stop(name, reason string) bool {
	s.mu.Lock()
	r, ok := s.runners[name]
	if ok {
		delete(s.runners, name)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	r.stop()
	s.finish(r, reason)
	return true
}

// finish records the terminal snapshot of a runner that left the map.
func (s *Supervisor) finish(r *runner, reason string) {
	prev, next := r.update(func(a *types.ActiveSession) {
		a.State = types.StateRemoved
		a.Connected = false
	})
	s.publishState(r.name, prev.State, next)
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.SessionRemoved,
			Data: event.SessionRemovedData{Name: r.name, Reason: reason},
		})
	}
	s.log.Info().Str("session", r.name).Str("reason", reason).Msg("session stopped")
}

// Restart stops and starts a session with its current descriptor.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	desc, ok := s.store.FindByName(ctx, name)
	if !ok {
		return fmt.Errorf("%w: %s", sessionstore.ErrSessionNotFound, name)
	}
	s.Stop(name)
	if s.cache != nil {
		s.cache.Drop(name)
	}
	return s.Start(ctx, desc)
}

// RestartAll restarts every configured session and returns their names.
func (s *Supervisor) RestartAll(ctx context.Context) ([]string, error) {
	cfg := s.store.Snapshot(ctx)
	var names []string
	var errs []error
	for _, d := range cfg.Sessions {
		if err := s.Restart(ctx, d.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, d.Name)
	}
	return names, errors.Join(errs...)
}

// Remove stops a session, deletes its config entry and erases its
// credentials. It reports whether anything existed.
func (s *Supervisor) Remove(ctx context.Context, name string) (bool, error) {
	removed, err := s.store.Remove(ctx, name)
	if err != nil {
		return false, err
	}
	stopped := s.stop(name, ReasonDeleted)
	s.purge(ctx, name)
	return stopped || removed, nil
}

// purge erases local state of a session that is gone for good.
func (s *Supervisor) purge(ctx context.Context, name string) {
	if s.bootstrap != nil {
		if err := s.bootstrap.Erase(ctx, name); err != nil {
			s.log.Warn().Err(err).Str("session", name).Msg("failed to erase credentials")
		}
	}
	if s.cache != nil {
		s.cache.Drop(name)
	}
}

// Sync starts configured sessions that are not running and stops running
// sessions that are no longer configured. Sessions are matched by name only.
func (s *Supervisor) Sync(ctx context.Context, cfg *types.Config) (started, stopped []string, err error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	want := make(map[string]types.SessionDescriptor, len(cfg.Sessions))
	for _, d := range cfg.Sessions {
		want[d.Name] = d
	}

	s.mu.Lock()
	var running []string
	for name := range s.runners {
		running = append(running, name)
	}
	s.mu.Unlock()
	slices.Sort(running)

	for _, name := range running {
		if _, ok := want[name]; !ok {
			if s.Stop(name) {
				stopped = append(stopped, name)
			}
			if s.cache != nil {
				s.cache.Drop(name)
			}
		}
	}
	for _, d := range cfg.Sessions {
		if slices.Contains(running, d.Name) {
			continue
		}
		if err := s.Start(ctx, d); err != nil {
			return started, stopped, err
		}
		started = append(started, d.Name)
	}
	if len(started) > 0 || len(stopped) > 0 {
		s.log.Info().Strs("started", started).Strs("stopped", stopped).Msg("sessions synced")
	}
	return started, stopped, nil
}

// Shutdown stops every session. It returns ctx's error if the sessions did
// not stop in time.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.sweepStop != nil {
		close(s.sweepStop)
		<-s.sweepDone
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, name := range names {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				s.Stop(name)
			}(name)
		}
		wg.Wait()
	}()

	select {
	case <-done:
		s.baseCancel()
		return nil
	case <-ctx.Done():
		s.baseCancel()
		return ctx.Err()
	}
}

// Status returns the snapshot of a running session.
func (s *Supervisor) Status(name string) (*types.ActiveSession, bool) {
	s.mu.Lock()
	r, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// List returns the snapshots of all running sessions sorted by name.
func (s *Supervisor) List() []*types.ActiveSession {
	s.mu.Lock()
	out := make([]*types.ActiveSession, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.snapshot())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *types.ActiveSession) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// Stats aggregates the counters of all running sessions.
type Stats struct {
	Sessions      int                        `json:"sessions"`
	Connected     int                        `json:"connected"`
	TotalMessages int64                      `json:"totalMessages"`
	States        map[types.SessionState]int `json:"states"`
	Uptime        string                     `json:"uptime"`
	StartedAt     time.Time                  `json:"startedAt"`
}

// Stats returns aggregate counters.
func (s *Supervisor) Stats() Stats {
	st := Stats{States: make(map[types.SessionState]int), StartedAt: s.started}
	for _, a := range s.List() {
		st.Sessions++
		if a.Connected {
			st.Connected++
		}
		st.TotalMessages += a.Performance.MessageCount
		st.States[a.State]++
	}
	st.Uptime = s.now().Sub(s.started).Round(time.Second).String()
	return st
}

// RecordMessage bumps a session's message counter.
func (s *Supervisor) RecordMessage(session string, at time.Time) {
	s.mu.Lock()
	r, ok := s.runners[session]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.update(func(a *types.ActiveSession) {
		a.Performance.MessageCount++
		a.Performance.LastActivity = timePtr(at)
	})
}

// transition applies fn and publishes a state event when the state changed.
func (s *Supervisor) transition(r *runner, fn func(a *types.ActiveSession)) *types.ActiveSession {
	prev, next := r.update(fn)
	if prev.State != next.State {
		s.log.Debug().Str("session", r.name).Str("state", string(next.State)).Msg("session state changed")
		s.publishState(r.name, prev.State, next)
	}
	return next
}

func (s *Supervisor) publishState(name string, from types.SessionState, snap *types.ActiveSession) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: event.SessionStateChanged,
		Data: event.SessionStateData{Name: name, From: from, To: snap.State, Snapshot: snap},
	})
}

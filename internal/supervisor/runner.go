package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// runner owns one session's connection loop. Its snapshot is replaced, never
// mutated, so readers can hold on to a pointer without locking.
type runner struct {
	name string
	desc types.SessionDescriptor

	mu       sync.Mutex
	snap     atomic.Pointer[types.ActiveSession]
	client   transport.Client
	welcomed bool

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func newRunner(desc types.SessionDescriptor, now time.Time) *runner {
	r := &runner{
		name: desc.Name,
		desc: desc.Clone(),
		done: make(chan struct{}),
	}
	r.snap.Store(&types.ActiveSession{
		Name:        desc.Name,
		State:       types.StateStarting,
		Performance: types.Performance{StartTime: now},
	})
	return r
}

// snapshot returns the current snapshot.
func (r *runner) snapshot() *types.ActiveSession {
	return r.snap.Load()
}

// update installs a modified copy of the current snapshot and returns the
// previous and new snapshots.
func (r *runner) update(fn func(s *types.ActiveSession)) (prev, next *types.ActiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev = r.snap.Load()
	cp := *prev
	fn(&cp)
	r.snap.Store(&cp)
	return prev, &cp
}

// replaceIf swaps in next only while cur is still the current snapshot.
func (r *runner) replaceIf(cur, next *types.ActiveSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.Load() != cur {
		return false
	}
	r.snap.Store(next)
	return true
}

func (r *runner) setClient(c transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = c
}

func (r *runner) currentClient() transport.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

// markWelcomed reports whether this is the first call.
func (r *runner) markWelcomed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.welcomed {
		return false
	}
	r.welcomed = true
	return true
}

// stop cancels the loop and waits for it and its helpers to exit.
func (r *runner) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if c := r.currentClient(); c != nil {
		c.Disconnect()
	}
	<-r.done
	r.wg.Wait()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

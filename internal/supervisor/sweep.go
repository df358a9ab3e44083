package supervisor

import (
	"context"
	"time"

	"github.com/telnet2/wamux/pkg/types"
)

func (s *Supervisor) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)
	if interval <= 0 {
		<-s.sweepStop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// expired reports whether a snapshot has been disconnected past the timeout.
func (s *Supervisor) expired(a *types.ActiveSession, now time.Time) bool {
	if a.State != types.StateDisconnected && a.State != types.StateReconnecting {
		return false
	}
	return a.LastDisconnectTime != nil && now.Sub(*a.LastDisconnectTime) > s.settings.DisconnectTimeout.Std()
}

// Sweep removes sessions that have been disconnected for longer than the
// disconnect timeout and returns their names. A session is removed only if
// the snapshot that was judged expired is still current, so a reconnect
// racing the sweep wins and repeated sweeps never remove twice.
func (s *Supervisor) Sweep(now time.Time) []string {
	type candidate struct {
		r    *runner
		snap *types.ActiveSession
	}
	var candidates []candidate

	s.mu.Lock()
	for _, r := range s.runners {
		if snap := r.snapshot(); s.expired(snap, now) {
			candidates = append(candidates, candidate{r, snap})
		}
	}
	s.mu.Unlock()

	var removed []string
	for _, c := range candidates {
		if !s.claim(c.r, c.snap) {
			continue
		}
		removed = append(removed, c.r.name)
		s.log.Warn().Str("session", c.r.name).Time("disconnected_at", *c.snap.LastDisconnectTime).
			Msg("disconnect timeout reached, removing session")

		c.r.stop()
		ctx := context.Background()
		if _, err := s.store.Remove(ctx, c.r.name); err != nil {
			s.log.Error().Err(err).Str("session", c.r.name).Msg("failed to remove session config")
		}
		s.purge(ctx, c.r.name)
		s.finish(c.r, ReasonTimeout)
	}
	return removed
}

// claim takes the runner out of the map if snap is still its current
// snapshot. The snapshot is marked removed under the same check.
func (s *Supervisor) claim(r *runner, snap *types.ActiveSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runners[r.name] != r {
		return false
	}
	next := *snap
	next.State = types.StateRemoved
	next.Connected = false
	if !r.replaceIf(snap, &next) {
		return false
	}
	delete(s.runners, r.name)
	return true
}

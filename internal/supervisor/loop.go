package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// selfPolls bounds how long the welcome notice waits for the self id.
const (
	selfPolls    = 10
	selfPollWait = 500 * time.Millisecond
)

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.settings.ReconnectDelay.Std()
	b.MaxInterval = s.settings.ReconnectMaxDelay.Std()
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// run is the session's supervising loop. It opens a connection, consumes
// its events until it closes, waits out the backoff and tries again until
// ctx is cancelled.
func (s *Supervisor) run(ctx context.Context, r *runner) {
	defer close(r.done)
	log := s.log.With().Str("session", r.name).Logger()

	s.restore(ctx, r)

	bo := s.newBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		if s.connectOnce(ctx, r) {
			bo.Reset()
		}
		if ctx.Err() != nil {
			return
		}

		delay := bo.NextBackOff()
		log.Info().Dur("delay", delay).Msg("reconnecting after backoff")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.transition(r, func(a *types.ActiveSession) {
			a.State = types.StateReconnecting
		})
	}
}

// restore pulls credentials from backup before the first connection. A
// failure only means the session has to pair interactively.
func (s *Supervisor) restore(ctx context.Context, r *runner) {
	if s.bootstrap == nil {
		return
	}
	restored, err := s.bootstrap.Ensure(ctx, r.desc)
	switch {
	case err != nil && !errors.Is(err, credential.ErrNoBackup):
		s.log.Warn().Err(err).Str("session", r.name).Msg("credential restore failed, falling back to pairing")
	case err != nil:
		s.log.Debug().Str("session", r.name).Msg("no backup store configured, pairing required")
	case restored:
		s.log.Info().Str("session", r.name).Msg("credentials restored")
	}
}

// connectOnce runs one connection until it closes or ctx is cancelled. It
// reports whether the connection was established.
func (s *Supervisor) connectOnce(ctx context.Context, r *runner) bool {
	log := s.log.With().Str("session", r.name).Logger()

	desc, ok := s.store.FindByName(ctx, r.name)
	if !ok {
		desc = r.desc
	}
	s.transition(r, func(a *types.ActiveSession) {
		a.Performance.ConnectionAttempts++
	})

	opts := transport.Options{PairingNumber: s.settings.PairingNumber[r.name]}
	if s.bootstrap != nil {
		opts.Dir = s.bootstrap.Dir(r.name)
	}
	client, err := s.factory.Open(ctx, desc, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to open client")
		s.disconnected(r, err.Error())
		return false
	}
	r.setClient(client)
	defer r.setClient(nil)

	if err := client.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect")
		client.Disconnect()
		s.disconnected(r, err.Error())
		return false
	}

	connected := false
	events := client.Events()
	for {
		select {
		case <-ctx.Done():
			client.Disconnect()
			return connected
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					s.disconnected(r, "event stream closed")
				}
				return connected
			}
			switch ev.Type {
			case transport.EventConnected:
				connected = true
				s.onConnected(ctx, r, client)
			case transport.EventQR:
				s.transition(r, func(a *types.ActiveSession) {
					a.State = types.StateAwaitingAuth
					a.QR = ev.Code
				})
				log.Info().Msg("waiting for QR code scan")
			case transport.EventPairing:
				s.transition(r, func(a *types.ActiveSession) {
					a.State = types.StateAwaitingAuth
					a.PairingCode = ev.Code
				})
				log.Info().Str("code", ev.Code).Msg("waiting for pairing code entry")
			case transport.EventMessage:
				if ev.Message != nil {
					s.handler.Dispatch(ctx, client, r.name, ev.Message)
				}
			case transport.EventCredsUpdated:
				log.Debug().Msg("credentials updated")
			case transport.EventClosed:
				client.Disconnect()
				if ev.LoggedOut {
					log.Warn().Str("reason", ev.Reason).Msg("logged out, erasing credentials")
					if s.bootstrap != nil {
						if err := s.bootstrap.Erase(ctx, r.name); err != nil {
							log.Warn().Err(err).Msg("failed to erase credentials")
						}
					}
				} else {
					log.Warn().Str("reason", ev.Reason).Msg("connection closed")
				}
				s.disconnected(r, ev.Reason)
				return connected
			}
		}
	}
}

func (s *Supervisor) onConnected(ctx context.Context, r *runner, client transport.Client) {
	now := s.now()
	snap := s.transition(r, func(a *types.ActiveSession) {
		a.State = types.StateConnected
		a.Connected = true
		a.SelfID = client.SelfID()
		a.QR = ""
		a.PairingCode = ""
		a.LastDisconnectTime = nil
		a.LastError = ""
		a.Performance.ConnectionTime = timePtr(now)
	})
	s.log.Info().Str("session", r.name).Str("self", snap.SelfID).Msg("session connected")

	if s.settings.Welcome() && r.markWelcomed() {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.welcome(ctx, r, client, snap)
		}()
	}
}

// disconnected marks the session down. The disconnect time is kept from the
// first failure until the next successful connection, so failed retries do
// not postpone the sweep.
func (s *Supervisor) disconnected(r *runner, reason string) {
	now := s.now()
	s.transition(r, func(a *types.ActiveSession) {
		a.State = types.StateDisconnected
		a.Connected = false
		if a.LastDisconnectTime == nil {
			a.LastDisconnectTime = timePtr(now)
		}
		a.LastError = reason
	})
}

// welcome sends a one-time notice to the bot's own chat. Failures are logged.
func (s *Supervisor) welcome(ctx context.Context, r *runner, client transport.Client, snap *types.ActiveSession) {
	if !sleep(ctx, s.settings.WelcomeDelay.Std()) {
		return
	}
	self := client.SelfID()
	for i := 0; self == "" && i < selfPolls; i++ {
		if !sleep(ctx, selfPollWait) {
			return
		}
		self = client.SelfID()
	}
	if self == "" {
		s.log.Debug().Str("session", r.name).Msg("self id unknown, skipping welcome notice")
		return
	}

	desc, ok := s.store.FindByName(ctx, r.name)
	if !ok {
		desc = r.desc
	}
	text := welcomeText(s.store.Snapshot(ctx).BotName, desc, snap)
	if err := client.SendMessage(ctx, identity.UserJID(identity.Number(self)), types.Payload{Text: text}); err != nil {
		s.log.Warn().Err(err).Str("session", r.name).Msg("failed to send welcome notice")
	}
}

func welcomeText(botName string, desc types.SessionDescriptor, snap *types.ActiveSession) string {
	took := "n/a"
	if snap.Performance.ConnectionTime != nil {
		took = snap.Performance.ConnectionTime.Sub(snap.Performance.StartTime).Round(100 * time.Millisecond).String()
	}
	p := desc.EffectivePrefix()
	return fmt.Sprintf("*✅ %s connected*\n\nSession: %s\nOwner: %s\nPrefix: %s\nMode: %s\nConnected in: %s\n\nType *%smenu* to see the commands.",
		botName, desc.Name, desc.OwnerNumber, p, desc.EffectiveMode(), took, p)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package dispatch turns inbound chat messages into command invocations.
//
// For every message the dispatcher decodes identities, reads the descriptor
// bound to the connection, extracts the text, matches the prefix, resolves
// permissions, looks the command up, applies the private mode and the
// command's requirements, and finally runs the handler. Handler errors and
// panics are answered with a generic notice and never leave Dispatch.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/permission"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// Outcome is what Dispatch did with a message.
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeDenied   Outcome = "denied"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
)

// Recorder receives per-session activity counters.
type Recorder interface {
	RecordMessage(session string, at time.Time)
}

// Options configure a Dispatcher.
type Options struct {
	Store    *sessionstore.Store
	Registry *command.Registry
	Resolver *permission.Resolver
	// Bus and Recorder are optional.
	Bus      *event.Bus
	Recorder Recorder
}

// Dispatcher routes messages to commands. One Dispatcher serves every
// session; calls for a single session are expected to be serialized by the
// caller.
type Dispatcher struct {
	store    *sessionstore.Store
	registry *command.Registry
	resolver *permission.Resolver
	bus      *event.Bus
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		store:    opts.Store,
		registry: opts.Registry,
		resolver: opts.Resolver,
		bus:      opts.Bus,
		recorder: opts.Recorder,
		log:      logging.Component("dispatch"),
		now:      time.Now,
	}
}

// SetRecorder sets the activity recorder. It must be called before the
// first Dispatch.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Dispatch handles one inbound message received on the named session.
func (d *Dispatcher) Dispatch(ctx context.Context, client transport.Client, sessionName string, msg *types.Message) Outcome {
	if msg == nil {
		return OutcomeIgnored
	}
	chat := identity.Canonical(msg.Chat)
	if chat == identity.StatusBroadcast {
		return OutcomeIgnored
	}
	sender := identity.Canonical(msg.Sender)
	if sender == "" && msg.FromMe {
		sender = identity.Canonical(client.SelfID())
	}

	if d.recorder != nil {
		d.recorder.RecordMessage(sessionName, d.now())
	}

	desc, ok := d.store.FindByName(ctx, sessionName)
	if !ok {
		d.log.Debug().Str("session", sessionName).Msg("message for unconfigured session dropped")
		return OutcomeIgnored
	}

	text := ExtractText(msg.Content)
	prefix := desc.EffectivePrefix()
	if !strings.HasPrefix(text, prefix) {
		return OutcomeIgnored
	}
	fields := strings.Fields(text[len(prefix):])
	if len(fields) == 0 {
		return OutcomeIgnored
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	log := d.log.With().
		Str("session", sessionName).
		Str("chat", chat).
		Str("sender", sender).
		Str("command", name).
		Logger()

	perms, meta := d.resolver.Resolve(ctx, client, permission.Request{
		Session:     desc,
		SessionName: sessionName,
		Sender:      sender,
		Chat:        chat,
		SelfID:      client.SelfID(),
	})

	cmd, ok := d.registry.Get(name)
	if !ok {
		log.Debug().Msg("unknown command")
		key := msg.Key()
		d.send(ctx, client, chat, types.Payload{Reaction: ReactionUnknown, ReactTo: &key}, log)
		d.reply(ctx, client, msg, UnknownCommandNotice(name, prefix, d.registry.Suggest(name)), log)
		return OutcomeUnknown
	}

	isGroup := identity.IsGroup(chat)
	if err := permission.CheckMode(desc.EffectiveMode(), perms); err != nil {
		return d.deny(ctx, client, msg, err, log)
	}
	if err := permission.Check(cmd.Name, cmd.Requirements, perms, isGroup); err != nil {
		return d.deny(ctx, client, msg, err, log)
	}

	inv := &command.Invocation{
		Client:  client,
		Message: msg,
		Raw:     msg.Raw,
		Name:    name,
		Args:    args,
		Context: &command.Context{
			SessionName:  sessionName,
			Session:      desc,
			BotName:      d.store.Snapshot(ctx).BotName,
			ChatType:     identity.ChatTypeOf(chat),
			IsGroup:      isGroup,
			Permissions:  perms,
			Group:        meta,
			Sender:       sender,
			SenderNumber: identity.Number(sender),
			Store:        d.store,
			Registry:     d.registry,
		},
	}

	err := d.invoke(ctx, cmd, inv)
	d.publish(sessionName, cmd.Name, chat, sender, err)
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		d.reply(ctx, client, msg, NoticeFailure, log)
		return OutcomeFailed
	}
	log.Debug().Msg("command executed")
	return OutcomeExecuted
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, cmd *command.Command, inv *command.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", cmd.Name, r)
			d.log.Error().Str("stack", string(debug.Stack())).Str("command", cmd.Name).Msg("command panicked")
		}
	}()
	return cmd.Run(ctx, inv)
}

func (d *Dispatcher) deny(ctx context.Context, client transport.Client, msg *types.Message, err error, log zerolog.Logger) Outcome {
	denied, _ := permission.IsDeniedError(err)
	log.Debug().Str("reason", string(denied.Reason)).Msg("command denied")
	d.reply(ctx, client, msg, DeniedNotice(denied.Reason), log)
	return OutcomeDenied
}

func (d *Dispatcher) reply(ctx context.Context, client transport.Client, msg *types.Message, text string, log zerolog.Logger) {
	key := msg.Key()
	d.send(ctx, client, identity.Canonical(msg.Chat), types.Payload{Text: text, Quote: &key}, log)
}

// send logs and swallows transport failures.
func (d *Dispatcher) send(ctx context.Context, client transport.Client, chat string, p types.Payload, log zerolog.Logger) {
	if err := client.SendMessage(ctx, chat, p); err != nil {
		log.Warn().Err(err).Msg("failed to send reply")
	}
}

func (d *Dispatcher) publish(session, cmd, chat, sender string, err error) {
	if d.bus == nil {
		return
	}
	data := event.CommandExecutedData{Session: session, Command: cmd, Chat: chat, Sender: sender}
	if err != nil {
		data.Error = err.Error()
	}
	d.bus.Publish(event.Event{Type: event.CommandExecuted, Data: data})
}

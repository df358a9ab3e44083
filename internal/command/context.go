package command

import (
	"context"
	"strings"

	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// Handler runs a command. Replies go through inv.Reply or inv.Client.
// A returned error is answered with a generic failure notice.
type Handler func(ctx context.Context, inv *Invocation) error

// Store is the part of the session configuration store commands may edit.
type Store interface {
	FindByName(ctx context.Context, name string) (types.SessionDescriptor, bool)
	SetPrefix(ctx context.Context, name, prefix string) error
	SetMode(ctx context.Context, name, mode string) error
	AddSudo(ctx context.Context, name, number string) (bool, error)
	RemoveSudo(ctx context.Context, name, number string) (bool, error)
}

// Context is the per-message bundle handed to a command.
type Context struct {
	SessionName string
	// Session is the descriptor bound to the connection, read once per message.
	Session types.SessionDescriptor
	BotName string

	ChatType    types.ChatType
	IsGroup     bool
	Permissions types.PermissionResult
	// Group is nil outside groups or when metadata could not be fetched.
	Group *types.GroupMetadata

	// Sender is the canonical sender id; SenderNumber its digits.
	Sender       string
	SenderNumber string

	Store    Store
	Registry *Registry
}

// Invocation is one command call.
type Invocation struct {
	Client  transport.Client
	Message *types.Message
	// Raw is the transport-native message.
	Raw any
	// Name is the command name as typed, lower-cased.
	Name    string
	Args    []string
	Context *Context
}

// Input returns the arguments joined by single spaces.
func (inv *Invocation) Input() string {
	return strings.Join(inv.Args, " ")
}

// Prefix returns the session's effective prefix.
func (inv *Invocation) Prefix() string {
	return inv.Context.Session.EffectivePrefix()
}

// Reply sends text to the originating chat, quoting the command message.
func (inv *Invocation) Reply(ctx context.Context, text string) error {
	key := inv.Message.Key()
	return inv.Client.SendMessage(ctx, inv.Message.Chat, types.Payload{Text: text, Quote: &key})
}

// ReplyMentions sends text mentioning the given ids.
func (inv *Invocation) ReplyMentions(ctx context.Context, text string, mentions ...string) error {
	key := inv.Message.Key()
	return inv.Client.SendMessage(ctx, inv.Message.Chat, types.Payload{Text: text, Quote: &key, Mentions: mentions})
}

// React reacts to the command message.
func (inv *Invocation) React(ctx context.Context, emoji string) error {
	key := inv.Message.Key()
	return inv.Client.SendMessage(ctx, inv.Message.Chat, types.Payload{Reaction: emoji, ReactTo: &key})
}

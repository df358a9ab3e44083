// Package transport defines the narrow surface wamux needs from a messaging
// client. The whatsapp subpackage implements it over whatsmeow; transporttest
// provides an in-memory fake.
package transport

import (
	"context"
	"errors"

	"github.com/telnet2/wamux/pkg/types"
)

// ErrClosed is returned by operations on a disconnected client.
var ErrClosed = errors.New("transport: client closed")

// EventType names a transport event.
type EventType string

const (
	// EventConnected is emitted when the connection is open and authenticated.
	EventConnected EventType = "connected"
	// EventClosed is emitted when the connection is lost. Events() is closed right after.
	EventClosed EventType = "closed"
	// EventQR carries a QR code to scan for login.
	EventQR EventType = "qr"
	// EventPairing carries a numeric pairing code for login.
	EventPairing EventType = "pairing"
	// EventMessage carries an inbound message.
	EventMessage EventType = "message"
	// EventCredsUpdated signals that credential material on disk changed.
	EventCredsUpdated EventType = "creds_updated"
)

// Event is one item of a client's event stream.
type Event struct {
	Type EventType

	// Code is the QR or pairing code.
	Code string
	// Reason describes why a connection closed.
	Reason string
	// LoggedOut is set on EventClosed when the credentials were revoked.
	LoggedOut bool
	// Message is set on EventMessage.
	Message *types.Message
}

// Client is one connection to the messaging network.
type Client interface {
	// Connect opens the connection. Progress is reported on Events.
	Connect(ctx context.Context) error
	// Disconnect closes the connection. It is safe to call more than once.
	Disconnect()
	// SelfID returns the account's own identifier, or "" before login.
	SelfID() string
	// SendMessage sends payload to chatID.
	SendMessage(ctx context.Context, chatID string, payload types.Payload) error
	// GroupMetadata fetches group information.
	GroupMetadata(ctx context.Context, chatID string) (*types.GroupMetadata, error)
	// Events returns the event stream. Events are delivered in order.
	Events() <-chan Event
}

// Options configure how a Factory opens a client.
type Options struct {
	// Dir is the session's credential directory.
	Dir string
	// PairingNumber, when set, requests a numeric pairing code instead of a QR code.
	PairingNumber string
}

// Factory opens clients for sessions.
type Factory interface {
	Open(ctx context.Context, desc types.SessionDescriptor, opts Options) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, desc types.SessionDescriptor, opts Options) (Client, error)

// Open implements Factory.
func (f FactoryFunc) Open(ctx context.Context, desc types.SessionDescriptor, opts Options) (Client, error) {
	return f(ctx, desc, opts)
}

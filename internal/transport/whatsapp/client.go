// Package whatsapp implements transport.Client over whatsmeow. Each session
// keeps its device keys in a sqlite database inside its credential
// directory.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	watypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

const eventBuffer = 256

// pairingClientName is shown in the phone's linked devices list.
const pairingClientName = "Chrome (Linux)"

// Client is one whatsmeow connection.
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	opts      transport.Options
	log       zerolog.Logger

	events   chan transport.Event
	quit     chan struct{}
	quitOnce sync.Once
	endOnce  sync.Once
	inflight sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	paired   bool
	cancel   context.CancelFunc
	handlers uint32
}

func newClient(wa *whatsmeow.Client, container *sqlstore.Container, opts transport.Options, log zerolog.Logger) *Client {
	c := &Client{
		wa:        wa,
		container: container,
		opts:      opts,
		log:       log,
		events:    make(chan transport.Event, eventBuffer),
		quit:      make(chan struct{}),
	}
	c.handlers = wa.AddEventHandler(c.handle)
	return c
}

// Connect opens the websocket. A device without credentials starts the QR
// flow, or the pairing code flow when a pairing number is configured.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if c.wa.Store.ID == nil {
		qr, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go c.pumpQR(ctx, qr)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) pumpQR(ctx context.Context, ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if c.opts.PairingNumber == "" {
				c.emit(transport.Event{Type: transport.EventQR, Code: item.Code})
				continue
			}
			c.requestPairingCode(ctx)
		case whatsmeow.QRChannelSuccess.Event:
			return
		case whatsmeow.QRChannelTimeout.Event:
			c.end(&transport.Event{Type: transport.EventClosed, Reason: "login timed out"})
			return
		case whatsmeow.QRChannelEventError:
			reason := "login failed"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			c.end(&transport.Event{Type: transport.EventClosed, Reason: reason})
			return
		}
	}
}

// requestPairingCode asks for a numeric code once per connection; later QR
// refreshes keep the same code valid.
func (c *Client) requestPairingCode(ctx context.Context) {
	c.mu.Lock()
	if c.paired {
		c.mu.Unlock()
		return
	}
	c.paired = true
	c.mu.Unlock()

	number := identity.NormalizeNumber(c.opts.PairingNumber)
	code, err := c.wa.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, pairingClientName)
	if err != nil {
		c.log.Error().Err(err).Str("number", number).Msg("pairing code request failed")
		c.end(&transport.Event{Type: transport.EventClosed, Reason: err.Error()})
		return
	}
	c.emit(transport.Event{Type: transport.EventPairing, Code: code})
}

func (c *Client) handle(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		c.emit(transport.Event{Type: transport.EventConnected})
	case *events.PairSuccess:
		c.log.Info().Str("jid", e.ID.String()).Msg("device paired")
		c.emit(transport.Event{Type: transport.EventCredsUpdated})
	case *events.Message:
		c.emit(transport.Event{Type: transport.EventMessage, Message: convertMessage(e)})
	case *events.LoggedOut:
		c.end(&transport.Event{Type: transport.EventClosed, Reason: "logged out: " + e.Reason.String(), LoggedOut: true})
	case *events.StreamReplaced:
		c.end(&transport.Event{Type: transport.EventClosed, Reason: "stream replaced"})
	case *events.TemporaryBan:
		c.end(&transport.Event{Type: transport.EventClosed, Reason: e.String()})
	case *events.ConnectFailure:
		c.end(&transport.Event{
			Type:      transport.EventClosed,
			Reason:    fmt.Sprintf("connect failure: %s", e.Reason),
			LoggedOut: e.Reason.IsLoggedOut(),
		})
	case *events.Disconnected:
		c.end(&transport.Event{Type: transport.EventClosed, Reason: "connection lost"})
	}
}

// emit delivers ev unless the client is shutting down.
func (c *Client) emit(ev transport.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// end delivers the final event, if any, and closes the stream.
func (c *Client) end(final *transport.Event) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if final != nil {
			select {
			case c.events <- *final:
			case <-c.quit:
			}
		}
		c.quitOnce.Do(func() { close(c.quit) })
		c.inflight.Wait()
		close(c.events)
	})
}

// Disconnect closes the connection and the device store.
func (c *Client) Disconnect() {
	c.quitOnce.Do(func() { close(c.quit) })
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wa.RemoveEventHandler(c.handlers)
	c.wa.Disconnect()
	c.end(nil)
	if c.container != nil {
		if err := c.container.Close(); err != nil {
			c.log.Debug().Err(err).Msg("failed to close device store")
		}
		c.container = nil
	}
}

// SelfID returns the logged-in account without its device part.
func (c *Client) SelfID() string {
	if c.wa.Store == nil || c.wa.Store.ID == nil {
		return ""
	}
	return jidString(*c.wa.Store.ID)
}

// SendMessage sends a text or a reaction.
func (c *Client) SendMessage(ctx context.Context, chatID string, payload types.Payload) error {
	if !c.wa.IsConnected() {
		return transport.ErrClosed
	}
	to, err := watypes.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat %q: %w", chatID, err)
	}
	msg, err := buildMessage(payload, time.Now())
	if err != nil {
		return err
	}
	if _, err := c.wa.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// GroupMetadata fetches group info from the server.
func (c *Client) GroupMetadata(ctx context.Context, chatID string) (*types.GroupMetadata, error) {
	jid, err := watypes.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("invalid group %q: %w", chatID, err)
	}
	if jid.Server != watypes.GroupServer {
		return nil, errors.New("not a group chat")
	}
	info, err := c.wa.GetGroupInfo(jid)
	if err != nil {
		return nil, fmt.Errorf("failed to get group info: %w", err)
	}
	return convertGroup(info), nil
}

// Events returns the event stream.
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

var _ transport.Client = (*Client)(nil)

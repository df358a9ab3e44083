// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// Sent is a recorded outbound payload.
type Sent struct {
	Chat    string
	Payload types.Payload
}

// Client is a fake transport.Client. Tests drive it with Emit/Open/Close.
type Client struct {
	Name string

	mu       sync.Mutex
	self     string
	sent     []Sent
	groups   map[string]*types.GroupMetadata
	groupErr error
	sendErr  error
	connects int
	events   chan transport.Event
	closed   bool

	// AutoConnect emits EventConnected from Connect.
	AutoConnect bool
}

// NewClient creates a fake client with the given self id.
func NewClient(name, self string) *Client {
	return &Client{
		Name:   name,
		self:   self,
		groups: make(map[string]*types.GroupMetadata),
		events: make(chan transport.Event, 64),
	}
}

// Connect implements transport.Client.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connects++
	auto := c.AutoConnect
	c.mu.Unlock()
	if auto {
		c.Emit(transport.Event{Type: transport.EventConnected})
	}
	return nil
}

// Disconnect implements transport.Client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// SelfID implements transport.Client.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// SetSelfID changes the reported self id.
func (c *Client) SetSelfID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = id
}

// SendMessage implements transport.Client.
func (c *Client) SendMessage(ctx context.Context, chatID string, payload types.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, Sent{Chat: chatID, Payload: payload})
	return nil
}

// GroupMetadata implements transport.Client.
func (c *Client) GroupMetadata(ctx context.Context, chatID string) (*types.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.groupErr != nil {
		return nil, c.groupErr
	}
	meta, ok := c.groups[chatID]
	if !ok {
		return nil, errors.New("group not found")
	}
	return meta, nil
}

// Events implements transport.Client.
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// SetGroup registers group metadata.
func (c *Client) SetGroup(meta *types.GroupMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[meta.ID] = meta
}

// FailGroups makes GroupMetadata return err.
func (c *Client) FailGroups(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupErr = err
}

// FailSends makes SendMessage return err.
func (c *Client) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Emit delivers an event unless the client is closed.
func (c *Client) Emit(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

// Deliver emits an inbound message.
func (c *Client) Deliver(msg *types.Message) {
	c.Emit(transport.Event{Type: transport.EventMessage, Message: msg})
}

// Drop emits EventClosed and closes the stream, simulating a lost connection.
func (c *Client) Drop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- transport.Event{Type: transport.EventClosed, Reason: reason}
	c.closed = true
	close(c.events)
}

// Sent returns a copy of the recorded outbound payloads.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Texts returns the text of every recorded outbound payload.
func (c *Client) Texts() []string {
	var out []string
	for _, s := range c.Sent() {
		if s.Payload.Text != "" {
			out = append(out, s.Payload.Text)
		}
	}
	return out
}

// Reactions returns the reactions sent.
func (c *Client) Reactions() []string {
	var out []string
	for _, s := range c.Sent() {
		if s.Payload.Reaction != "" {
			out = append(out, s.Payload.Reaction)
		}
	}
	return out
}

// Connects returns how many times Connect was called.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Closed reports whether Disconnect or Drop was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Factory hands out fake clients and remembers every one it opened.
type Factory struct {
	mu      sync.Mutex
	opened  map[string][]*Client
	err     error
	Self    string
	Prepare func(c *Client)
}

// NewFactory creates a factory whose clients auto-connect.
func NewFactory() *Factory {
	return &Factory{opened: make(map[string][]*Client), Self: "221788888888@s.whatsapp.net"}
}

// Open implements transport.Factory.
func (f *Factory) Open(ctx context.Context, desc types.SessionDescriptor, opts transport.Options) (transport.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := NewClient(desc.Name, f.Self)
	c.AutoConnect = true
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.opened[desc.Name] = append(f.opened[desc.Name], c)
	return c, nil
}

// Fail makes Open return err.
func (f *Factory) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Opened returns the clients opened for a session, oldest first.
func (f *Factory) Opened(name string) []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.opened[name]...)
}

// Latest returns the most recent client for a session, or nil.
func (f *Factory) Latest(name string) *Client {
	all := f.Opened(name)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

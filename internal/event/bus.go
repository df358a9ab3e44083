package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
)

// EventType represents the type of event.
type EventType string

const (
	SessionStateChanged EventType = "session.state"
	SessionRemoved      EventType = "session.removed"
	ConfigChanged       EventType = "config.changed"
	CommandsReloaded    EventType = "commands.reloaded"
	CommandExecuted     EventType = "command.executed"
)

// Topic is the watermill topic every event is mirrored to as JSON.
const Topic = "wamux.events"

// Event represents an event to be published.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus delivers typed events to in-process subscribers and mirrors them,
// JSON encoded, onto a watermill gochannel topic for stream consumers.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[EventType][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribeGlobal(id)
	}
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i:i], b.global[i+1:]...)
			break
		}
	}
}

// collect stamps the event and returns its subscribers, or nil when closed.
func (b *Bus) collect(event *Event) ([]Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false
	}

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	subs := make([]Subscriber, 0, len(b.subscribers[event.Type])+len(b.global))
	for _, entry := range b.subscribers[event.Type] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs, true
}

// mirror publishes the event onto the watermill topic. Events whose data
// cannot be encoded are only delivered in-process.
func (b *Bus) mirror(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = b.pubsub.Publish(Topic, message.NewMessage(event.ID, payload))
}

// Publish sends an event to all subscribers asynchronously.
// Each subscriber is called in its own goroutine.
func (b *Bus) Publish(event Event) {
	subs, ok := b.collect(&event)
	if !ok {
		return
	}
	b.mirror(event)
	for _, sub := range subs {
		go sub(event)
	}
}

// PublishSync sends an event to all subscribers synchronously.
// All subscribers are called in the current goroutine before returning.
func (b *Bus) PublishSync(event Event) {
	subs, ok := b.collect(&event)
	if !ok {
		return
	}
	b.mirror(event)
	for _, sub := range subs {
		sub(event)
	}
}

// Stream subscribes to the mirrored topic. Messages must be acked by the caller.
// The channel closes when ctx is done or the bus is closed.
func (b *Bus) Stream(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic)
}

// Close closes the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

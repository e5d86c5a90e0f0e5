package routing

import "sync"

// EventKind identifies an internal router notification.
type EventKind int

const (
	// EventSelfSubscribed is broadcast when the reply-queue bootstrap
	// completes, successfully or not.
	EventSelfSubscribed EventKind = iota

	// EventRequestTimeout is published when a pending request is evicted
	// by its timer.
	EventRequestTimeout

	// EventError is published for every routing, consume, or
	// self-subscribe error the router surfaces.
	EventError
)

// Event is one internal router notification.
type Event struct {
	Kind          EventKind
	Err           error
	CorrelationID string
	Context       string
}

// Bus is the router's internal notification channel. It is scoped to one
// router instance: one-shot waiters block on a specific event kind, and
// persistent listeners observe every published event.
type Bus struct {
	mu        sync.Mutex
	waiters   map[EventKind][]chan Event
	listeners []func(Event)
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		waiters: make(map[EventKind][]chan Event),
	}
}

// AddListener registers a persistent observer for all events. Listeners run
// synchronously on the publishing goroutine and must not block.
func (b *Bus) AddListener(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Wait returns a one-shot channel that receives the next event of kind and
// is then detached.
func (b *Bus) Wait(kind EventKind) <-chan Event {
	ch := make(chan Event, 1)

	b.mu.Lock()
	b.waiters[kind] = append(b.waiters[kind], ch)
	b.mu.Unlock()

	return ch
}

// Publish delivers evt to every one-shot waiter for its kind and to every
// persistent listener.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	waiters := b.waiters[evt.Kind]
	delete(b.waiters, evt.Kind)
	listeners := make([]func(Event), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, ch := range waiters {
		ch <- evt
	}
	for _, fn := range listeners {
		fn(evt)
	}
}

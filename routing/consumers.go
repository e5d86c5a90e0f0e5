package routing

import (
	"log/slog"
	"sync"
)

// ConsumerRegistration records one subscribed handler. ConsumerTag is empty
// between Register and Update; the registration is addressable by Index in
// that window so a failed broker subscribe can roll it back.
type ConsumerRegistration struct {
	Index       int
	Queue       string
	Topic       string
	Exchange    string
	Handler     Handler
	ConsumerTag string
}

// ConsumerTable maps inbound deliveries to registered handlers. Entries are
// keyed by a provisional index at registration time and by the
// broker-assigned consumer tag once the subscribe round-trip completes.
type ConsumerTable struct {
	mu            sync.Mutex
	nextIndex     int
	registrations map[int]*ConsumerRegistration
	logger        *slog.Logger
}

// NewConsumerTable creates a new consumer routing table
func NewConsumerTable(logger *slog.Logger) *ConsumerTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerTable{
		registrations: make(map[int]*ConsumerRegistration),
		logger:        logger,
	}
}

// Register stores a provisional registration and returns its index.
func (t *ConsumerTable) Register(handler Handler, queue, topic, exchange string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := t.nextIndex
	t.nextIndex++

	t.registrations[index] = &ConsumerRegistration{
		Index:    index,
		Queue:    queue,
		Topic:    topic,
		Exchange: exchange,
		Handler:  handler,
	}

	return index
}

// Update fills in the broker-confirmed queue name and consumer tag for the
// registration at index. Single-flight subscribe calls make a concurrent
// removal unexpected here, but it is checked.
func (t *ConsumerTable) Update(index int, queue, consumerTag string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.registrations[index]
	if !ok {
		return &UnknownIndexError{Index: index}
	}

	reg.Queue = queue
	reg.ConsumerTag = consumerTag

	t.logger.Debug("consumer registration confirmed",
		"index", index,
		"queue", queue,
		"consumerTag", consumerTag,
	)

	return nil
}

// Unregister removes the registration at index. Used for normal teardown and
// for rollback when the broker-level subscribe fails after provisional
// registration.
func (t *ConsumerTable) Unregister(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.registrations[index]; !ok {
		return &UnknownIndexError{Index: index}
	}

	delete(t.registrations, index)
	return nil
}

// HandlerByConsumerTag resolves the handler for an inbound delivery. A miss
// means the delivery arrived for a subscription the router no longer tracks
// and is surfaced as HandlerNotFoundError.
func (t *ConsumerTable) HandlerByConsumerTag(consumerTag string) (Handler, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, reg := range t.registrations {
		if reg.ConsumerTag != "" && reg.ConsumerTag == consumerTag {
			return reg.Handler, nil
		}
	}

	return nil, &HandlerNotFoundError{ConsumerTag: consumerTag}
}

// ByConsumerTag returns a copy of the registration matching consumerTag.
func (t *ConsumerTable) ByConsumerTag(consumerTag string) (ConsumerRegistration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, reg := range t.registrations {
		if reg.ConsumerTag != "" && reg.ConsumerTag == consumerTag {
			return *reg, true
		}
	}

	return ConsumerRegistration{}, false
}

// Registrations returns a snapshot of all current registrations.
func (t *ConsumerTable) Registrations() []ConsumerRegistration {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]ConsumerRegistration, 0, len(t.registrations))
	for _, reg := range t.registrations {
		result = append(result, *reg)
	}
	return result
}

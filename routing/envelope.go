package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/glimte/courier-go/contracts"
)

// EnvelopeBuilder constructs wire-level envelopes for one router. Ids are
// "<name>.<elapsedNanos>" where elapsedNanos is the monotonic clock reading
// since the builder was created, bumped by one whenever two builds land on
// the same reading, so (name, counter) pairs never repeat within the
// process's lifetime.
type EnvelopeBuilder struct {
	name      string
	startTime time.Time

	mu   sync.Mutex
	last int64
}

// NewEnvelopeBuilder creates a builder stamped with the router's name.
func NewEnvelopeBuilder(name string) *EnvelopeBuilder {
	return &EnvelopeBuilder{
		name:      name,
		startTime: time.Now(),
	}
}

// Build constructs an envelope carrying payload. replyID is the correlation
// id of the request this envelope replies to, or empty. replyOn is the
// destination replies to this envelope should be published on. Fails with
// ErrInvalidPayload when payload is nil.
func (b *EnvelopeBuilder) Build(payload []byte, replyID, to string, replyOn contracts.Destination) (*contracts.Envelope, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}

	return &contracts.Envelope{
		ID:      b.nextID(),
		ReplyTo: replyID,
		ReplyOn: replyOn,
		From:    b.name,
		To:      to,
		Message: payload,
	}, nil
}

func (b *EnvelopeBuilder) nextID() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := time.Since(b.startTime).Nanoseconds()
	if elapsed <= b.last {
		elapsed = b.last + 1
	}
	b.last = elapsed

	return fmt.Sprintf("%s.%d", b.name, elapsed)
}

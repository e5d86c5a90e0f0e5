package routing

import (
	"context"
	"time"

	"github.com/glimte/courier-go/contracts"
)

// Handler processes an inbound envelope. A non-nil response payload is sent
// back to the sender's declared reply destination, correlated to the inbound
// envelope's id. A nil response means fire-and-forget.
type Handler interface {
	Handle(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error) {
	return f(ctx, envelope, delivery)
}

// ConsumerFunc receives a raw broker delivery. The connector invokes it for
// every inbound message; a non-nil error tells the connector to nack.
type ConsumerFunc func(ctx context.Context, payload []byte, delivery contracts.Delivery) error

// Subscription is the broker's answer to a subscribe call.
type Subscription struct {
	// Queue is the broker-confirmed queue name. May differ from the
	// requested name when the broker assigns one.
	Queue string

	// ConsumerTag identifies the active subscription at the broker.
	ConsumerTag string
}

// SubscribeOptions configures a transport-level subscription.
type SubscribeOptions struct {
	Durable     bool
	AutoDelete  bool
	Exclusive   bool
	ConsumerTag string
}

// SendOptions configures a transport-level send.
type SendOptions struct {
	// Expiration is an optional broker-side message TTL.
	Expiration time.Duration
}

// Connector is the broker transport the router drives. Its connection
// lifecycle, wire protocol, and acknowledgement semantics are its own
// concern; the router only sees this surface.
type Connector interface {
	// Connect establishes the broker connection.
	Connect(ctx context.Context) error

	// Subscribe registers consumer for deliveries on queue, optionally
	// bound to topic on exchange, and returns the broker-confirmed queue
	// name and consumer tag.
	Subscribe(ctx context.Context, consumer ConsumerFunc, queue, topic, exchange string, opts SubscribeOptions) (Subscription, error)

	// SendMessage publishes payload to destination.
	SendMessage(ctx context.Context, destination contracts.Destination, payload []byte, opts SendOptions) error

	// Unsubscribe cancels the subscription identified by consumerTag.
	Unsubscribe(ctx context.Context, consumerTag string) error

	// Close releases all transport resources.
	Close() error
}

// ErrorCollector receives every routing, consume, and self-subscribe error
// the router surfaces internally. The connector's delivery path usually has
// no application-level context to act on these, so they are broadcast here
// as well as returned.
type ErrorCollector func(err error, context string)

// TimeoutListener is notified when a pending request is evicted by its timer.
type TimeoutListener func(id string)

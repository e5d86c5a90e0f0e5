package contracts

// Delivery carries the arrival context of an inbound message: where it came
// from and how to negatively acknowledge it. Handlers receive a copy; they
// cannot reach router internals through it.
type Delivery struct {
	// Queue is the broker queue the message arrived on.
	Queue string

	// Topic is the routing key the subscription was bound with, if any.
	Topic string

	// Exchange is the exchange the subscription was bound to, if any.
	Exchange string

	// ConsumerTag is the broker-assigned identifier of the subscription
	// that received this message.
	ConsumerTag string

	// Nack returns the message to the broker. When requeue is true the
	// broker redelivers it; otherwise it is discarded or dead-lettered.
	// Nil when the transport has already settled the delivery.
	Nack func(requeue bool) error
}

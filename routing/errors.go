package routing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPayload is returned when a nil payload is handed to the
	// envelope builder.
	ErrInvalidPayload = errors.New("courier: payload must not be nil")

	// ErrInvalidDestination is returned when an outbound send names no queue.
	ErrInvalidDestination = errors.New("courier: destination queue must not be empty")

	// ErrRouterClosed is returned for operations on a closed router.
	ErrRouterClosed = errors.New("courier: router is closed")
)

// DuplicateIDError indicates a pending request was registered twice under
// the same correlation id. The builder's id contract should make this
// impossible; the table checks anyway.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("courier: request %q is already pending", e.ID)
}

// RequestTimeoutError settles a pending request whose TTL elapsed with no
// reply.
type RequestTimeoutError struct {
	ID  string
	TTL time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("courier: request %q timed out after %v", e.ID, e.TTL)
}

// UnknownIndexError indicates a consumer registration was updated or removed
// after it was already gone from the routing table.
type UnknownIndexError struct {
	Index int
}

func (e *UnknownIndexError) Error() string {
	return fmt.Sprintf("courier: no consumer registration at index %d", e.Index)
}

// HandlerNotFoundError indicates an inbound delivery arrived for a consumer
// tag the router no longer tracks. This signals a desync between the
// connector and the routing table and is surfaced rather than dropped.
type HandlerNotFoundError struct {
	ConsumerTag string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("courier: no handler registered for consumer tag %q", e.ConsumerTag)
}

// NoDefaultHandlerError indicates an unsolicited direct message arrived on
// the router's own queue and no default handler is configured.
type NoDefaultHandlerError struct {
	From string
}

func (e *NoDefaultHandlerError) Error() string {
	return fmt.Sprintf("courier: no default handler for unsolicited message from %q", e.From)
}

// SendMessageError wraps any failure during a fire-and-forget send.
type SendMessageError struct {
	Queue string
	Err   error
}

func (e *SendMessageError) Error() string {
	return fmt.Sprintf("courier: failed to send message to %q: %v", e.Queue, e.Err)
}

func (e *SendMessageError) Unwrap() error {
	return e.Err
}

// SendRequestError wraps any failure during a correlated send.
type SendRequestError struct {
	Queue string
	ID    string
	Err   error
}

func (e *SendRequestError) Error() string {
	return fmt.Sprintf("courier: failed to send request %q to %q: %v", e.ID, e.Queue, e.Err)
}

func (e *SendRequestError) Unwrap() error {
	return e.Err
}

// SubscribeError wraps a transport failure during an explicit subscribe call.
type SubscribeError struct {
	Queue string
	Err   error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("courier: failed to subscribe to %q: %v", e.Queue, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// SelfSubscribeError wraps a failure of the router's reply-queue bootstrap
// subscription. Every caller waiting on the bootstrap observes the same error.
type SelfSubscribeError struct {
	Router string
	Err    error
}

func (e *SelfSubscribeError) Error() string {
	return fmt.Sprintf("courier: router %q failed to subscribe to its reply queue: %v", e.Router, e.Err)
}

func (e *SelfSubscribeError) Unwrap() error {
	return e.Err
}

// RoutingError wraps a handler lookup or handler execution failure for an
// inbound delivery.
type RoutingError struct {
	ConsumerTag string
	Err         error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("courier: failed to route delivery for consumer tag %q: %v", e.ConsumerTag, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// ConsumeError wraps a payload decode failure on the receive path.
type ConsumeError struct {
	Queue string
	Err   error
}

func (e *ConsumeError) Error() string {
	return fmt.Sprintf("courier: failed to decode delivery from %q: %v", e.Queue, e.Err)
}

func (e *ConsumeError) Unwrap() error {
	return e.Err
}

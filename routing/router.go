package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/courier-go/contracts"
	"github.com/glimte/courier-go/serialization"
	"github.com/google/uuid"
)

// subscriptionState tracks the router's reply-queue bootstrap.
type subscriptionState int

const (
	stateIdle subscriptionState = iota
	stateSubscribing
	stateSubscribed
)

const defaultTTLSeconds = 5

// Router coordinates request/reply and topic/queue dispatch over a broker
// connector. It owns a pending request table, a consumer routing table, and
// an internal event bus; none of that state is shared across routers.
type Router struct {
	name       string
	connector  Connector
	serializer serialization.EnvelopeSerializer
	logger     *slog.Logger

	listen         contracts.Destination
	defaultTTL     time.Duration
	defaultHandler Handler

	builder   *EnvelopeBuilder
	pending   *PendingTable
	consumers *ConsumerTable
	bus       *Bus

	// mu guards the bootstrap state machine and the return destination.
	mu         sync.Mutex
	state      subscriptionState
	returnDest contracts.Destination
	closed     bool
}

// RouterOption configures the Router
type RouterOption func(*Router)

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithListenAddress sets the router's own listen address. An empty queue
// name means the broker assigns one during the reply-queue bootstrap.
func WithListenAddress(queue, topic, exchange string) RouterOption {
	return func(r *Router) {
		r.listen = contracts.Destination{Queue: queue, Topic: topic, Exchange: exchange}
	}
}

// WithDefaultTTLSeconds sets the default request TTL in seconds.
func WithDefaultTTLSeconds(seconds int) RouterOption {
	return func(r *Router) {
		r.defaultTTL = time.Duration(seconds) * time.Second
	}
}

// WithDefaultHandler sets the handler for unsolicited direct messages
// arriving on the router's own queue.
func WithDefaultHandler(handler Handler) RouterOption {
	return func(r *Router) {
		r.defaultHandler = handler
	}
}

// WithErrorCollector registers a collector invoked for every routing,
// consume, and self-subscribe error the router surfaces.
func WithErrorCollector(collector ErrorCollector) RouterOption {
	return func(r *Router) {
		r.bus.AddListener(func(evt Event) {
			if evt.Kind == EventError {
				collector(evt.Err, evt.Context)
			}
		})
	}
}

// WithRouterTimeoutListener registers a listener notified whenever a pending
// request is evicted by its timer.
func WithRouterTimeoutListener(listener TimeoutListener) RouterOption {
	return func(r *Router) {
		r.bus.AddListener(func(evt Event) {
			if evt.Kind == EventRequestTimeout {
				listener(evt.CorrelationID)
			}
		})
	}
}

// NewRouter creates a router named name over connector and serializer.
func NewRouter(name string, connector Connector, serializer serialization.EnvelopeSerializer, options ...RouterOption) *Router {
	r := &Router{
		name:       name,
		connector:  connector,
		serializer: serializer,
		logger:     slog.Default(),
		defaultTTL: defaultTTLSeconds * time.Second,
		builder:    NewEnvelopeBuilder(name),
		bus:        NewBus(),
	}

	for _, opt := range options {
		opt(r)
	}

	r.pending = NewPendingTable(
		WithPendingLogger(r.logger),
		WithTimeoutListener(func(id string) {
			r.bus.Publish(Event{Kind: EventRequestTimeout, CorrelationID: id})
		}),
	)
	r.consumers = NewConsumerTable(r.logger)

	return r
}

// SendOption configures a single send or request.
type SendOption func(*sendConfig)

type sendConfig struct {
	to  string
	ttl time.Duration
}

// WithRecipient sets the envelope's recipient hint.
func WithRecipient(to string) SendOption {
	return func(c *sendConfig) {
		c.to = to
	}
}

// WithTTLSeconds overrides the request TTL for one call.
func WithTTLSeconds(seconds int) SendOption {
	return func(c *sendConfig) {
		c.ttl = time.Duration(seconds) * time.Second
	}
}

// WithTTL overrides the request TTL for one call with a duration.
func WithTTL(ttl time.Duration) SendOption {
	return func(c *sendConfig) {
		c.ttl = ttl
	}
}

// SendMessage builds and dispatches a fire-and-forget envelope carrying
// payload to destination. It returns once the transport accepts the message.
func (r *Router) SendMessage(ctx context.Context, payload []byte, destination contracts.Destination, options ...SendOption) error {
	cfg := r.sendConfig(options)

	if r.isClosed() {
		return &SendMessageError{Queue: destination.Queue, Err: ErrRouterClosed}
	}

	if err := r.ValidateDestination(destination); err != nil {
		return &SendMessageError{Queue: destination.Queue, Err: err}
	}

	envelope, err := r.builder.Build(payload, "", cfg.to, r.returnDestination())
	if err != nil {
		return &SendMessageError{Queue: destination.Queue, Err: err}
	}

	if err := r.dispatch(ctx, envelope, destination, cfg); err != nil {
		return &SendMessageError{Queue: destination.Queue, Err: err}
	}

	r.logger.Debug("message sent",
		"id", envelope.ID,
		"queue", destination.Queue,
	)

	return nil
}

// SendRequest builds and dispatches a correlated request to destination and
// returns a future that settles with the reply, a RequestTimeoutError, or
// the send failure. The router subscribes to its own reply queue first if it
// has not already.
func (r *Router) SendRequest(ctx context.Context, payload []byte, destination contracts.Destination, options ...SendOption) (*ReplyFuture, error) {
	cfg := r.sendConfig(options)

	if err := r.ValidateDestination(destination); err != nil {
		return nil, &SendRequestError{Queue: destination.Queue, Err: err}
	}

	if err := r.ensureSelfSubscribed(ctx); err != nil {
		return nil, &SendRequestError{Queue: destination.Queue, Err: err}
	}

	envelope, err := r.builder.Build(payload, "", cfg.to, r.returnDestination())
	if err != nil {
		return nil, &SendRequestError{Queue: destination.Queue, Err: err}
	}

	ttl := cfg.ttl
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	future, err := r.pending.Register(envelope.ID, ttl)
	if err != nil {
		return nil, &SendRequestError{Queue: destination.Queue, ID: envelope.ID, Err: err}
	}

	if err := r.dispatch(ctx, envelope, destination, cfg); err != nil {
		// Evict rather than leave the entry to time out.
		wrapped := &SendRequestError{Queue: destination.Queue, ID: envelope.ID, Err: err}
		r.pending.Unregister(envelope.ID, wrapped)
		return nil, wrapped
	}

	r.logger.Debug("request sent",
		"id", envelope.ID,
		"queue", destination.Queue,
		"ttl", ttl,
	)

	return future, nil
}

// Request sends a correlated request and blocks until the reply arrives, the
// TTL elapses, or ctx is cancelled.
func (r *Router) Request(ctx context.Context, payload []byte, destination contracts.Destination, options ...SendOption) (*contracts.Envelope, error) {
	future, err := r.SendRequest(ctx, payload, destination, options...)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// Subscribe registers handler for deliveries on queue, optionally bound to
// topic on exchange. The registration is provisional until the broker
// confirms the subscription; a transport failure rolls it back.
func (r *Router) Subscribe(ctx context.Context, handler Handler, queue, topic, exchange string, opts SubscribeOptions) (Subscription, error) {
	if handler == nil {
		return Subscription{}, &SubscribeError{Queue: queue, Err: fmt.Errorf("handler cannot be nil")}
	}

	if r.isClosed() {
		return Subscription{}, &SubscribeError{Queue: queue, Err: ErrRouterClosed}
	}

	index := r.consumers.Register(handler, queue, topic, exchange)

	sub, err := r.connector.Subscribe(ctx, r.ConsumeMessages, queue, topic, exchange, opts)
	if err != nil {
		if rbErr := r.consumers.Unregister(index); rbErr != nil {
			r.logger.Error("failed to roll back provisional registration",
				"index", index,
				"error", rbErr,
			)
		}
		return Subscription{}, &SubscribeError{Queue: queue, Err: err}
	}

	if err := r.consumers.Update(index, sub.Queue, sub.ConsumerTag); err != nil {
		return Subscription{}, &SubscribeError{Queue: queue, Err: err}
	}

	r.logger.Info("subscribed",
		"queue", sub.Queue,
		"topic", topic,
		"exchange", exchange,
		"consumerTag", sub.ConsumerTag,
	)

	return sub, nil
}

// Unsubscribe cancels the subscription identified by consumerTag and removes
// its registration.
func (r *Router) Unsubscribe(ctx context.Context, consumerTag string) error {
	reg, ok := r.consumers.ByConsumerTag(consumerTag)
	if !ok {
		return &HandlerNotFoundError{ConsumerTag: consumerTag}
	}

	if err := r.connector.Unsubscribe(ctx, consumerTag); err != nil {
		return fmt.Errorf("failed to unsubscribe consumer %s: %w", consumerTag, err)
	}

	return r.consumers.Unregister(reg.Index)
}

// ConsumeMessages is the router's transport-facing consumer callback: it
// decodes the raw payload and routes the resulting envelope. Decode failures
// are wrapped as ConsumeError, surfaced to the error collector, and returned
// to the connector.
func (r *Router) ConsumeMessages(ctx context.Context, payload []byte, delivery contracts.Delivery) error {
	envelope, err := r.serializer.Unserialize(payload)
	if err != nil {
		wrapped := &ConsumeError{Queue: delivery.Queue, Err: err}
		r.surface(wrapped, "consume")
		return wrapped
	}

	return r.RouteMessage(ctx, envelope, delivery)
}

// RouteMessage resolves the handler for delivery's consumer tag and invokes
// it. A non-nil handler response is sent back to the inbound envelope's
// declared reply destination, correlated to its id. Lookup and handler
// failures are wrapped as RoutingError, surfaced, and returned.
func (r *Router) RouteMessage(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) error {
	handler, err := r.consumers.HandlerByConsumerTag(delivery.ConsumerTag)
	if err != nil {
		wrapped := &RoutingError{ConsumerTag: delivery.ConsumerTag, Err: err}
		r.surface(wrapped, "route")
		return wrapped
	}

	response, err := handler.Handle(ctx, envelope, delivery)
	if err != nil {
		wrapped := &RoutingError{ConsumerTag: delivery.ConsumerTag, Err: err}
		r.surface(wrapped, "route")
		return wrapped
	}

	if response == nil || envelope.ReplyOn.IsZero() {
		return nil
	}

	if err := r.respond(ctx, response, envelope); err != nil {
		wrapped := &RoutingError{ConsumerTag: delivery.ConsumerTag, Err: err}
		r.surface(wrapped, "route")
		return wrapped
	}

	return nil
}

// respond sends a handler's response back to the requester.
func (r *Router) respond(ctx context.Context, response []byte, request *contracts.Envelope) error {
	reply, err := r.builder.Build(response, request.ID, request.From, r.returnDestination())
	if err != nil {
		return err
	}

	if err := r.ValidateDestination(request.ReplyOn); err != nil {
		return err
	}

	return r.dispatch(ctx, reply, request.ReplyOn, sendConfig{})
}

// ownHandler is the handler behind the router's own reply queue. Replies are
// resolved through the pending table; unsolicited direct messages go to the
// configured default handler.
func (r *Router) ownHandler(ctx context.Context, envelope *contracts.Envelope, delivery contracts.Delivery) ([]byte, error) {
	if envelope.IsReply() {
		r.pending.CallByID(envelope.ReplyTo, envelope)
		return nil, nil
	}

	if r.defaultHandler == nil {
		return nil, &NoDefaultHandlerError{From: envelope.From}
	}

	return r.defaultHandler.Handle(ctx, envelope, delivery)
}

// ValidateDestination fails unless destination names a non-empty queue.
func (r *Router) ValidateDestination(destination contracts.Destination) error {
	if destination.Queue == "" {
		return ErrInvalidDestination
	}
	return nil
}

// ensureSelfSubscribed guarantees exactly one active subscription for the
// router's own reply traffic. The first caller to observe the idle state
// performs the subscribe; concurrent callers wait on the event bus for its
// outcome instead of racing the state flags.
func (r *Router) ensureSelfSubscribed(ctx context.Context) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}

	switch r.state {
	case stateSubscribed:
		r.mu.Unlock()
		return nil

	case stateSubscribing:
		wait := r.bus.Wait(EventSelfSubscribed)
		r.mu.Unlock()

		select {
		case evt := <-wait:
			return evt.Err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.state = stateSubscribing
	listen := r.listen
	r.mu.Unlock()

	queue := listen.Queue
	if queue == "" {
		queue = fmt.Sprintf("%s.reply.%s", r.name, uuid.New().String()[:8])
	}

	sub, err := r.Subscribe(ctx, HandlerFunc(r.ownHandler), queue, listen.Topic, listen.Exchange, SubscribeOptions{
		Exclusive:  true,
		AutoDelete: true,
	})
	if err != nil {
		wrapped := &SelfSubscribeError{Router: r.name, Err: err}

		// Broadcast before reverting the state, under the lock: a caller
		// starting a fresh bootstrap must never see this attempt's failure.
		r.mu.Lock()
		r.bus.Publish(Event{Kind: EventSelfSubscribed, Err: wrapped})
		r.state = stateIdle
		r.mu.Unlock()

		r.surface(wrapped, "selfSubscribe")
		return wrapped
	}

	// Replies land on the bound topic if the listen address names one,
	// otherwise on the assigned queue.
	returnDest := contracts.Destination{Queue: sub.Queue, Exchange: listen.Exchange}
	if listen.Topic != "" {
		returnDest.Queue = listen.Topic
	}

	r.mu.Lock()
	r.returnDest = returnDest
	r.state = stateSubscribed
	r.mu.Unlock()

	r.logger.Info("self-subscribed for replies",
		"queue", sub.Queue,
		"consumerTag", sub.ConsumerTag,
		"returnDestination", returnDest.Queue,
	)

	r.bus.Publish(Event{Kind: EventSelfSubscribed})
	return nil
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// returnDestination returns the destination outgoing envelopes advertise for
// replies. Zero until the reply-queue bootstrap completes.
func (r *Router) returnDestination() contracts.Destination {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.returnDest
}

// dispatch serializes an envelope and hands it to the connector.
func (r *Router) dispatch(ctx context.Context, envelope *contracts.Envelope, destination contracts.Destination, cfg sendConfig) error {
	data, err := r.serializer.Serialize(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope %s: %w", envelope.ID, err)
	}

	opts := SendOptions{}
	if cfg.ttl > 0 {
		opts.Expiration = cfg.ttl
	}

	return r.connector.SendMessage(ctx, destination, data, opts)
}

// surface publishes err on the event bus for the error collector.
func (r *Router) surface(err error, context string) {
	r.logger.Error("router error",
		"context", context,
		"error", err,
	)
	r.bus.Publish(Event{Kind: EventError, Err: err, Context: context})
}

func (r *Router) sendConfig(options []SendOption) sendConfig {
	cfg := sendConfig{}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// Name returns the router's name.
func (r *Router) Name() string {
	return r.name
}

// PendingRequests returns the number of requests awaiting replies.
func (r *Router) PendingRequests() int {
	return r.pending.Len()
}

// Close cancels every active subscription and rejects further requests.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.state = stateIdle
	r.mu.Unlock()

	var firstErr error
	for _, reg := range r.consumers.Registrations() {
		if reg.ConsumerTag == "" {
			continue
		}
		if err := r.connector.Unsubscribe(ctx, reg.ConsumerTag); err != nil && firstErr == nil {
			firstErr = err
		}
		_ = r.consumers.Unregister(reg.Index)
	}

	return firstErr
}

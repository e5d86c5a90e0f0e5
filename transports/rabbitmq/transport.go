package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/courier-go/contracts"
	internal "github.com/glimte/courier-go/internal/rabbitmq"
	"github.com/glimte/courier-go/routing"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Connector implements routing.Connector over RabbitMQ. Each subscription
// gets its own channel; sends share one channel that is reopened after a
// broker-side close.
type Connector struct {
	manager *internal.ConnectionManager
	logger  *slog.Logger

	// rootCtx bounds every consume loop; cancelled on Close.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu        sync.Mutex
	publishCh *amqp.Channel
	consumers map[string]*activeConsumer
	closed    bool
}

type activeConsumer struct {
	channel *amqp.Channel
	queue   string
	cancel  context.CancelFunc
}

// ConnectorConfig holds configuration for the connector
type ConnectorConfig struct {
	ConnectionOptions []internal.ConnectionOption
	Logger            *slog.Logger
}

// ConnectorOption configures the connector
type ConnectorOption func(*ConnectorConfig)

// WithConnectorLogger sets the logger
func WithConnectorLogger(logger *slog.Logger) ConnectorOption {
	return func(cfg *ConnectorConfig) {
		cfg.Logger = logger
	}
}

// WithConnectionOptions sets connection manager options
func WithConnectionOptions(opts ...internal.ConnectionOption) ConnectorOption {
	return func(cfg *ConnectorConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// NewConnector creates a new RabbitMQ connector
func NewConnector(connectionString string, options ...ConnectorOption) *Connector {
	cfg := &ConnectorConfig{
		Logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	connOpts := append([]internal.ConnectionOption{internal.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)

	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &Connector{
		manager:    internal.NewConnectionManager(connectionString, connOpts...),
		logger:     cfg.Logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		consumers:  make(map[string]*activeConsumer),
	}
}

var _ routing.Connector = (*Connector)(nil)

// Connect establishes the broker connection.
func (c *Connector) Connect(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

// Subscribe declares the requested topology, starts consuming, and returns
// the broker-confirmed queue name and consumer tag. An empty queue name asks
// the broker to assign one.
func (c *Connector) Subscribe(ctx context.Context, consumer routing.ConsumerFunc, queue, topic, exchange string, opts routing.SubscribeOptions) (routing.Subscription, error) {
	conn, err := c.manager.GetConnection()
	if err != nil {
		return routing.Subscription{}, fmt.Errorf("failed to get connection: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		return routing.Subscription{}, fmt.Errorf("failed to open channel: %w", err)
	}

	if exchange != "" {
		if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			channel.Close()
			return routing.Subscription{}, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	q, err := channel.QueueDeclare(queue, opts.Durable, opts.AutoDelete, opts.Exclusive, false, nil)
	if err != nil {
		channel.Close()
		return routing.Subscription{}, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if topic != "" && exchange != "" {
		if err := channel.QueueBind(q.Name, topic, exchange, false, nil); err != nil {
			channel.Close()
			return routing.Subscription{}, fmt.Errorf("failed to bind queue %s to %s/%s: %w", q.Name, exchange, topic, err)
		}
	}

	tag := opts.ConsumerTag
	if tag == "" {
		tag = fmt.Sprintf("courier.%s", uuid.New().String()[:8])
	}

	deliveries, err := channel.Consume(q.Name, tag, false, opts.Exclusive, false, false, nil)
	if err != nil {
		channel.Close()
		return routing.Subscription{}, &internal.ConsumerError{
			Queue:       q.Name,
			ConsumerTag: tag,
			Op:          "consume",
			Err:         err,
		}
	}

	// The loop must not inherit the subscribe caller's context: deliveries
	// keep arriving for the subscription's whole lifetime, long after a
	// request-scoped ctx has expired.
	loopCtx, loopCancel := context.WithCancel(c.rootCtx)

	c.mu.Lock()
	c.consumers[tag] = &activeConsumer{channel: channel, queue: q.Name, cancel: loopCancel}
	c.mu.Unlock()

	go c.consumeLoop(loopCtx, deliveries, consumer, q.Name, topic, exchange)

	c.logger.Debug("consumer started",
		"queue", q.Name,
		"topic", topic,
		"exchange", exchange,
		"consumerTag", tag,
	)

	return routing.Subscription{Queue: q.Name, ConsumerTag: tag}, nil
}

// consumeLoop feeds broker deliveries to the router's consumer callback,
// acknowledging on success and discarding on failure.
func (c *Connector) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, consumer routing.ConsumerFunc, queue, topic, exchange string) {
	for d := range deliveries {
		delivery := contracts.Delivery{
			Queue:       queue,
			Topic:       topic,
			Exchange:    exchange,
			ConsumerTag: d.ConsumerTag,
			Nack: func(requeue bool) error {
				return d.Nack(false, requeue)
			},
		}

		if err := consumer(ctx, d.Body, delivery); err != nil {
			// The router has already surfaced the error; don't requeue
			// a delivery it could not route.
			if nackErr := d.Nack(false, false); nackErr != nil {
				c.logger.Error("failed to nack delivery",
					"deliveryTag", d.DeliveryTag,
					"queue", queue,
					"error", nackErr,
				)
			}
			continue
		}

		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack delivery",
				"deliveryTag", d.DeliveryTag,
				"queue", queue,
				"error", err,
			)
		}
	}

	c.logger.Debug("delivery channel closed", "queue", queue)
}

// SendMessage publishes payload to destination. A destination with an
// exchange publishes there with the queue name as routing key; otherwise the
// default exchange delivers straight to the named queue.
func (c *Connector) SendMessage(ctx context.Context, destination contracts.Destination, payload []byte, opts routing.SendOptions) error {
	channel, err := c.publishChannel()
	if err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:  "application/octet-stream",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}
	if opts.Expiration > 0 {
		publishing.Expiration = fmt.Sprintf("%d", opts.Expiration.Milliseconds())
	}

	err = channel.PublishWithContext(ctx, destination.Exchange, destination.Queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", destination.Exchange, destination.Queue, err)
	}

	return nil
}

// Unsubscribe cancels the consumer identified by consumerTag and closes its
// channel.
func (c *Connector) Unsubscribe(ctx context.Context, consumerTag string) error {
	c.mu.Lock()
	consumer, ok := c.consumers[consumerTag]
	delete(c.consumers, consumerTag)
	c.mu.Unlock()

	if !ok {
		return &internal.ConsumerError{
			ConsumerTag: consumerTag,
			Op:          "unsubscribe",
			Err:         internal.ErrConsumerNotFound,
		}
	}

	consumer.cancel()

	if err := consumer.channel.Cancel(consumerTag, false); err != nil {
		consumer.channel.Close()
		return &internal.ConsumerError{
			Queue:       consumer.queue,
			ConsumerTag: consumerTag,
			Op:          "cancel",
			Err:         err,
		}
	}

	return consumer.channel.Close()
}

// Close cancels all consumers and closes the connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumers := c.consumers
	c.consumers = make(map[string]*activeConsumer)
	publishCh := c.publishCh
	c.publishCh = nil
	c.mu.Unlock()

	c.rootCancel()

	for tag, consumer := range consumers {
		if err := consumer.channel.Cancel(tag, false); err != nil {
			c.logger.Warn("failed to cancel consumer", "consumerTag", tag, "error", err)
		}
		consumer.channel.Close()
	}

	if publishCh != nil {
		publishCh.Close()
	}

	return c.manager.Close()
}

// publishChannel returns the shared publish channel, reopening it when the
// broker closed the previous one.
func (c *Connector) publishChannel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publishCh != nil && !c.publishCh.IsClosed() {
		return c.publishCh, nil
	}

	conn, err := c.manager.GetConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	c.publishCh = channel
	return channel, nil
}

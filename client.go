// Copyright 2024 Courier Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package courier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/courier-go/routing"
	"github.com/glimte/courier-go/serialization"
	rabbitmqTransport "github.com/glimte/courier-go/transports/rabbitmq"
)

const closeTimeout = 10 * time.Second

// Client provides the main entry point for courier-go
type Client struct {
	connector  *rabbitmqTransport.Connector
	router     *routing.Router
	serializer serialization.EnvelopeSerializer
	routerName string
}

// clientConfig holds client configuration
type clientConfig struct {
	logger          *slog.Logger
	routerName      string
	listenQueue     string
	listenTopic     string
	listenExchange  string
	ttlSeconds      int
	defaultHandler  routing.Handler
	errorCollector  routing.ErrorCollector
	timeoutListener routing.TimeoutListener
	serializer      serialization.EnvelopeSerializer
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithRouterName sets the router's name, used for envelope ids and the
// auto-generated reply queue name.
func WithRouterName(name string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.routerName = name
	}
}

// WithListenAddress sets the router's own listen address. All parts are
// optional; an empty queue lets the broker assign one.
func WithListenAddress(queue, topic, exchange string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.listenQueue = queue
		cfg.listenTopic = topic
		cfg.listenExchange = exchange
	}
}

// WithDefaultTTLSeconds sets the default request TTL in seconds.
func WithDefaultTTLSeconds(seconds int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.ttlSeconds = seconds
	}
}

// WithDefaultHandler sets the handler for unsolicited direct messages.
func WithDefaultHandler(handler routing.Handler) ClientOption {
	return func(cfg *clientConfig) {
		cfg.defaultHandler = handler
	}
}

// WithErrorCollector registers a collector for internally surfaced errors.
func WithErrorCollector(collector routing.ErrorCollector) ClientOption {
	return func(cfg *clientConfig) {
		cfg.errorCollector = collector
	}
}

// WithTimeoutListener registers a listener for request timeout evictions.
func WithTimeoutListener(listener routing.TimeoutListener) ClientOption {
	return func(cfg *clientConfig) {
		cfg.timeoutListener = listener
	}
}

// WithSerializer overrides the default JSON envelope serializer.
func WithSerializer(serializer serialization.EnvelopeSerializer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.serializer = serializer
	}
}

// NewClient creates a new courier client with the default RabbitMQ transport
func NewClient(connectionString string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:     slog.Default(),
		routerName: "courier",
		ttlSeconds: 5,
		serializer: serialization.NewJSONSerializer(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	connector := rabbitmqTransport.NewConnector(connectionString,
		rabbitmqTransport.WithConnectorLogger(cfg.logger),
	)

	if err := connector.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	routerOpts := []routing.RouterOption{
		routing.WithRouterLogger(cfg.logger),
		routing.WithListenAddress(cfg.listenQueue, cfg.listenTopic, cfg.listenExchange),
		routing.WithDefaultTTLSeconds(cfg.ttlSeconds),
	}
	if cfg.defaultHandler != nil {
		routerOpts = append(routerOpts, routing.WithDefaultHandler(cfg.defaultHandler))
	}
	if cfg.errorCollector != nil {
		routerOpts = append(routerOpts, routing.WithErrorCollector(cfg.errorCollector))
	}
	if cfg.timeoutListener != nil {
		routerOpts = append(routerOpts, routing.WithRouterTimeoutListener(cfg.timeoutListener))
	}

	router := routing.NewRouter(cfg.routerName, connector, cfg.serializer, routerOpts...)

	return &Client{
		connector:  connector,
		router:     router,
		serializer: cfg.serializer,
		routerName: cfg.routerName,
	}, nil
}

// Router returns the message router
func (c *Client) Router() *routing.Router {
	return c.router
}

// RouterName returns the configured router name
func (c *Client) RouterName() string {
	return c.routerName
}

// Close closes all resources
func (c *Client) Close() error {
	if c.router != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := c.router.Close(ctx); err != nil {
			c.connector.Close()
			return err
		}
	}
	return c.connector.Close()
}

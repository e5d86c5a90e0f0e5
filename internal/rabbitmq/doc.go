// Package rabbitmq manages the AMQP broker connection for the courier
// transport: dialing, close notification, and reconnection with capped
// exponential backoff.
package rabbitmq

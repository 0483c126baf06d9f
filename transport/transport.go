// Package transport defines the core interfaces and types for agendabus
// broker transports. Each implementation (redis, nats, kafka, rabbitmq,
// channel) lives in its own sub-package and registers itself with the
// transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines the publisher/subscriber pair produced by a builder,
// plus the optional health probe used by the connector's liveness check.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	// Pinger is set by transports that can cheaply probe the broker.
	// When nil, the connector falls back to tracking publish outcomes.
	Pinger Pinger
}

// Pinger probes broker connectivity without publishing anything.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be
// registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports. The
// interface lets each transport access only the keys it needs without
// depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string

	// Redis
	GetRedisURL() string

	// NATS
	GetNATSURL() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string
}

// Close shuts down the transport's publisher and subscriber. When both sides
// are backed by the same object (the in-memory channel transport) it is
// closed once.
func (t Transport) Close() error {
	var firstErr error

	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if err := t.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

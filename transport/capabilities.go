package transport

// Capabilities describes the features a transport backend offers to the bus.
// The coordination layer itself never needs more than at-most-once delivery,
// but services use this to decide whether a broker fits their deployment.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsOrdering indicates messages within a channel are delivered in
	// publish order.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment
	// (redelivery).
	SupportsNack bool

	// SupportsPing indicates the transport exposes a broker health probe,
	// so IsConnected reflects real connectivity rather than the last
	// publish outcome.
	SupportsPing bool

	// Durable indicates messages survive a broker restart. The bus never
	// relies on this; in-flight request/reply state is transient by design.
	Durable bool
}

// SupportsReliableDelivery returns true if the transport supports
// at-least-once delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport. Each
	// published message is delivered on its own goroutine, so cross-publish
	// ordering is not guaranteed.
	ChannelCapabilities = Capabilities{
		Name:         "channel",
		SupportsAck:  true,
		SupportsNack: true,
	}

	// RedisCapabilities for the Redis streams transport.
	RedisCapabilities = Capabilities{
		Name:             "redis",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsPing:     true,
		Durable:          true,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:             "nats",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsPing:     true,
	}

	// KafkaCapabilities for the Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// RabbitMQCapabilities for the RabbitMQ transport.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}
)

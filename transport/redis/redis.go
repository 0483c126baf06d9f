// Package redis provides a Redis streams transport for agendabus. Redis is
// the broker the calendar deployment ships with, so this transport also
// implements the Pinger probe backing each service's liveness check.
package redis

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	redisdriver "github.com/redis/go-redis/v9"

	"github.com/agendabus/agendabus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "redis"

// ClientFactory allows overriding the Redis client creation for testing.
var ClientFactory = func(url string) (redisdriver.UniversalClient, error) {
	opts, err := redisdriver.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return redisdriver.NewClient(opts), nil
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg redisstream.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return redisstream.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg redisstream.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return redisstream.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RedisCapabilities)
}

// Build creates a new Redis streams transport. The consumer group is left
// empty so every subscribed service observes every message on a channel,
// matching the broadcast semantics the calendar services rely on.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	client, err := ClientFactory(cfg.GetRedisURL())
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		redisstream.SubscriberConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
		Pinger:     &pinger{client: client},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RedisCapabilities
}

type pinger struct {
	client redisdriver.UniversalClient
}

func (p *pinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

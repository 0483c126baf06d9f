package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"

	configpkg "github.com/agendabus/agendabus/internal/bus/config"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
	transportpkg "github.com/agendabus/agendabus/transport"
)

const pingTimeout = 2 * time.Second

// Connector owns the broker connection shared by every publisher and
// subscriber in the process. Connection swaps are serialized under a mutex;
// a generation counter collapses concurrent failures into a single rebuild.
type Connector struct {
	conf     *configpkg.Config
	logger   loggingpkg.BusLogger
	wmLogger watermill.LoggerAdapter
	registry *transportpkg.Registry
	metrics  *Metrics

	mu  sync.Mutex
	tr  transportpkg.Transport
	gen uint64

	connected atomic.Bool
	closed    atomic.Bool
}

// NewConnector builds a connector that creates its transport through the
// supplied registry. Call Connect before publishing or subscribing.
func NewConnector(conf *configpkg.Config, logger loggingpkg.BusLogger, registry *transportpkg.Registry, metrics *Metrics) *Connector {
	if registry == nil {
		registry = transportpkg.DefaultRegistry
	}
	return &Connector{
		conf:     conf,
		logger:   logger,
		wmLogger: loggingpkg.NewWatermillAdapter(logger),
		registry: registry,
		metrics:  metrics,
	}
}

// Connect establishes the broker connection, retrying with exponential
// backoff (initial delay doubling per attempt up to the configured ceiling)
// for at most ReconnectMaxAttempts attempts. When the budget is exhausted it
// reports ErrTransportUnavailable instead of blocking forever.
func (c *Connector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errspkg.ErrBusClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tr.Publisher != nil && c.connected.Load() {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.conf.ReconnectInitialDelay
	bo.MaxInterval = c.conf.ReconnectMaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempts := c.conf.ReconnectMaxAttempts
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		if err := c.buildLocked(ctx); err != nil {
			c.logger.Error("broker connect attempt failed", err, loggingpkg.LogFields{
				"attempt":      attempt,
				"max_attempts": attempts,
			})
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("connect failed after %d attempts: %w", attempt, errspkg.ErrTransportUnavailable)
	}

	c.logger.Info("connected to broker", loggingpkg.LogFields{
		"pubsub_system": c.conf.PubSubSystem,
		"attempts":      attempt,
	})
	return nil
}

// buildLocked replaces the current transport with a freshly built one.
// Callers must hold c.mu.
func (c *Connector) buildLocked(ctx context.Context) error {
	tr, err := c.registry.Build(ctx, c.conf, c.wmLogger)
	if err != nil {
		return err
	}

	if tr.Pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := tr.Pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = tr.Close()
			return fmt.Errorf("broker ping failed: %w", err)
		}
	}

	old := c.tr
	c.tr = tr
	c.gen++
	c.connected.Store(true)
	if c.gen > 1 {
		c.metrics.IncReconnects()
	}

	if old.Publisher != nil {
		if cerr := old.Close(); cerr != nil {
			c.logger.Debug("closing stale transport", loggingpkg.LogFields{"error": cerr.Error()})
		}
	}
	return nil
}

// reconnectOnce performs the single implicit reconnect that publish and
// subscribe are allowed on failure. seenGen identifies the transport the
// caller observed failing; if another goroutine already replaced it, the
// current transport is reused without rebuilding.
func (c *Connector) reconnectOnce(ctx context.Context, seenGen uint64) (transportpkg.Transport, error) {
	if c.closed.Load() {
		return transportpkg.Transport{}, errspkg.ErrBusClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != seenGen && c.connected.Load() {
		return c.tr, nil
	}

	if err := c.buildLocked(ctx); err != nil {
		c.connected.Store(false)
		c.logger.Error("broker reconnect failed", err, nil)
		return transportpkg.Transport{}, fmt.Errorf("reconnect: %w", errspkg.ErrTransportUnavailable)
	}

	c.logger.Info("reconnected to broker", loggingpkg.LogFields{
		"pubsub_system": c.conf.PubSubSystem,
	})
	return c.tr, nil
}

func (c *Connector) current() (transportpkg.Transport, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr, c.gen, c.tr.Publisher != nil && c.connected.Load()
}

// Publish sends the message to the named channel, attempting one implicit
// reconnect when the transport fails.
func (c *Connector) Publish(ctx context.Context, channel string, msg *message.Message) error {
	if c.closed.Load() {
		return errspkg.ErrBusClosed
	}
	if channel == "" {
		return errspkg.ErrChannelRequired
	}

	tr, gen, ok := c.current()
	if !ok {
		var err error
		tr, err = c.reconnectOnce(ctx, gen)
		if err != nil {
			return err
		}
	}

	if err := tr.Publisher.Publish(channel, msg); err != nil {
		c.connected.Store(false)
		c.metrics.IncPublishFailures(channel)

		tr, rerr := c.reconnectOnce(ctx, gen)
		if rerr != nil {
			return fmt.Errorf("publish to %q: %w", channel, errspkg.ErrTransportUnavailable)
		}
		if err := tr.Publisher.Publish(channel, msg); err != nil {
			c.connected.Store(false)
			c.metrics.IncPublishFailures(channel)
			return fmt.Errorf("publish to %q after reconnect: %w", channel, errspkg.ErrTransportUnavailable)
		}
	}

	c.metrics.IncPublishes(channel)
	return nil
}

// Subscribe opens a message stream for the named channel. The stream closes
// when ctx is cancelled or the underlying transport is replaced; listeners
// are expected to resubscribe. One implicit reconnect is attempted on failure.
func (c *Connector) Subscribe(ctx context.Context, channel string) (<-chan *message.Message, error) {
	if c.closed.Load() {
		return nil, errspkg.ErrBusClosed
	}
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}

	tr, gen, ok := c.current()
	if !ok {
		var err error
		tr, err = c.reconnectOnce(ctx, gen)
		if err != nil {
			return nil, err
		}
	}

	msgs, err := tr.Subscriber.Subscribe(ctx, channel)
	if err != nil {
		c.connected.Store(false)

		tr, rerr := c.reconnectOnce(ctx, gen)
		if rerr != nil {
			return nil, fmt.Errorf("subscribe to %q: %w", channel, errspkg.ErrTransportUnavailable)
		}
		msgs, err = tr.Subscriber.Subscribe(ctx, channel)
		if err != nil {
			c.connected.Store(false)
			return nil, fmt.Errorf("subscribe to %q after reconnect: %w", channel, errspkg.ErrTransportUnavailable)
		}
	}

	return msgs, nil
}

// IsConnected reports broker connectivity. Transports exposing a Pinger are
// probed; the rest report the outcome of the last publish or connect.
func (c *Connector) IsConnected() bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()

	if tr.Publisher == nil {
		return false
	}
	if tr.Pinger == nil {
		return c.connected.Load()
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := tr.Pinger.Ping(ctx); err != nil {
		c.connected.Store(false)
		return false
	}
	c.connected.Store(true)
	return true
}

// Close tears down the transport. The connector cannot be reused afterwards.
func (c *Connector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.connected.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr.Publisher == nil {
		return nil
	}
	return c.tr.Close()
}

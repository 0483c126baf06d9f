package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/agendabus/agendabus/internal/bus/config"
	"github.com/agendabus/agendabus/internal/bus/envelope"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
	transportpkg "github.com/agendabus/agendabus/transport"
)

// Dependencies holds the optional collaborators a Bus can use. Leave fields
// nil for the defaults.
type Dependencies struct {
	// TransportRegistry overrides the transport registry, mainly for tests.
	TransportRegistry *transportpkg.Registry

	// MetricsRegisterer receives the bus collectors when metrics are enabled.
	MetricsRegisterer prometheus.Registerer
}

// Bus is the event-bus coordination layer a calendar service embeds: the
// broker connector, the handler dispatcher with its supervised listeners, and
// the correlation-reply waiter.
type Bus struct {
	Conf   *configpkg.Config
	Logger loggingpkg.BusLogger

	connector  *Connector
	dispatcher *Dispatcher
	waiter     *Waiter
	metrics    *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewBus connects to the broker and wires the coordination layer. It fails
// with ErrTransportUnavailable when the broker cannot be reached within the
// reconnect budget, so a service can surface a clear startup error instead
// of hanging.
func NewBus(ctx context.Context, conf *configpkg.Config, logger loggingpkg.BusLogger, deps Dependencies) (*Bus, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger.Info("creating event bus", loggingpkg.LogFields{
		"service":       conf.ServiceName,
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	metrics := NewMetrics(conf.MetricsEnabled, deps.MetricsRegisterer)
	connector := NewConnector(conf, logger, deps.TransportRegistry, metrics)
	if err := connector.Connect(ctx); err != nil {
		return nil, err
	}

	busCtx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		Conf:       conf,
		Logger:     logger,
		connector:  connector,
		dispatcher: NewDispatcher(logger, metrics, conf.WorkerPoolSize),
		waiter:     NewWaiter(connector, logger, metrics, conf.RequestTimeout, conf.PendingSweepInterval),
		metrics:    metrics,
		ctx:        busCtx,
		cancel:     cancel,
	}
	return b, nil
}

// RegisterHandler wires a handler to an inbound event type. Services call
// this during startup, before Listen.
func (b *Bus) RegisterHandler(reg HandlerRegistration) error {
	if b.closed.Load() {
		return errspkg.ErrBusClosed
	}
	return b.dispatcher.Register(reg)
}

// Listen starts a supervised background listener for the named channel. The
// listener owns the dispatch loop for that channel and is restarted after a
// bounded delay when its subscription fails or closes, until the bus shuts
// down.
func (b *Bus) Listen(channel string) error {
	if channel == "" {
		return errspkg.ErrChannelRequired
	}
	if b.closed.Load() {
		return errspkg.ErrBusClosed
	}

	b.wg.Add(1)
	go b.superviseListener(channel)
	return nil
}

func (b *Bus) superviseListener(channel string) {
	defer b.wg.Done()

	for {
		if b.ctx.Err() != nil {
			return
		}

		msgs, err := b.connector.Subscribe(b.ctx, channel)
		if err != nil {
			b.Logger.Error("listener subscribe failed", err, loggingpkg.LogFields{
				"channel": channel,
			})
		} else {
			b.Logger.Info("listening", loggingpkg.LogFields{"channel": channel})
			b.dispatcher.Run(b.ctx, msgs)
			if b.ctx.Err() != nil {
				return
			}
			b.Logger.Info("listener stopped, restarting", loggingpkg.LogFields{
				"channel": channel,
			})
		}

		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.Conf.ListenerRestartDelay):
		}
	}
}

// RequestReply publishes a request and blocks until the correlated reply
// arrives or the timeout fires. A zero timeout uses the configured default.
func (b *Bus) RequestReply(ctx context.Context, channel, eventType string, payload map[string]any, timeout time.Duration) (envelope.Envelope, error) {
	if b.closed.Load() {
		return envelope.Envelope{}, errspkg.ErrBusClosed
	}
	return b.waiter.RequestReply(ctx, channel, eventType, payload, timeout)
}

// IsConnected reports broker connectivity for the service's liveness check.
func (b *Bus) IsConnected() bool {
	return b.connector.IsConnected()
}

// PendingRequests returns the number of in-flight request/reply exchanges.
func (b *Bus) PendingRequests() int {
	return b.waiter.PendingCount()
}

// Close cancels the listeners and waits for them, and for in-flight pooled
// handlers, up to the configured grace period before giving up. It then tears
// down the waiter sweep and the broker connection.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		b.dispatcher.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(b.Conf.ShutdownGracePeriod):
		err = errors.New("agendabus: shutdown grace period exceeded, abandoning listeners")
		b.Logger.Error("forced shutdown", err, nil)
	}

	b.waiter.Close()
	if cerr := b.connector.Close(); cerr != nil && err == nil {
		err = cerr
	}

	b.Logger.Info("bus closed", loggingpkg.LogFields{"service": b.Conf.ServiceName})
	return err
}

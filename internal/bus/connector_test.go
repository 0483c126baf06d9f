package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	transportpkg "github.com/agendabus/agendabus/transport"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failNext  bool
	closed    bool
}

func (p *fakePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errors.New("broken pipe")
	}
	p.published = append(p.published, topic)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) publishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fakeSubscriber struct {
	failNext bool
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.failNext {
		s.failNext = false
		return nil, errors.New("subscription refused")
	}
	ch := make(chan *message.Message)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *fakeSubscriber) Close() error { return nil }

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

// fakeRegistry returns a registry whose builder delegates to build, counting
// invocations.
func fakeRegistry(builds *atomic.Int32, build func(n int32) (transportpkg.Transport, error)) *transportpkg.Registry {
	reg := transportpkg.NewRegistry()
	reg.Register("channel", func(ctx context.Context, cfg transportpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
		n := builds.Add(1)
		return build(n)
	})
	return reg
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		if n < 3 {
			return transportpkg.Transport{}, errors.New("broker not ready")
		}
		return transportpkg.Transport{Publisher: &fakePublisher{}, Subscriber: &fakeSubscriber{}}, nil
	})

	logger := newTestLogger()
	c := NewConnector(testConfig(), logger, reg, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := builds.Load(); got != 3 {
		t.Errorf("builder called %d times, want 3", got)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after successful Connect")
	}
}

func TestConnectExhaustsAttemptBudget(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, errors.New("broker down")
	})

	conf := testConfig()
	conf.ReconnectMaxAttempts = 3
	c := NewConnector(conf, newTestLogger(), reg, nil)

	err := c.Connect(context.Background())
	if !errors.Is(err, errspkg.ErrTransportUnavailable) {
		t.Fatalf("Connect() error = %v, want ErrTransportUnavailable", err)
	}
	if got := builds.Load(); got != 3 {
		t.Errorf("builder called %d times, want exactly the 3-attempt budget", got)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after exhausted budget")
	}
}

func TestConnectHonoursContextCancellation(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, errors.New("broker down")
	})

	conf := testConfig()
	conf.ReconnectMaxAttempts = 5

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConnector(conf, newTestLogger(), reg, nil)
	err := c.Connect(ctx)
	if !errors.Is(err, errspkg.ErrTransportUnavailable) {
		t.Fatalf("Connect() error = %v, want ErrTransportUnavailable", err)
	}
	if got := builds.Load(); got > 1 {
		t.Errorf("builder called %d times under cancelled context, want at most 1", got)
	}
}

func TestConnectRejectsTransportFailingPing(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{
			Publisher:  &fakePublisher{},
			Subscriber: &fakeSubscriber{},
			Pinger:     &fakePinger{err: errors.New("PING refused")},
		}, nil
	})

	conf := testConfig()
	conf.ReconnectMaxAttempts = 2
	c := NewConnector(conf, newTestLogger(), reg, nil)

	if err := c.Connect(context.Background()); !errors.Is(err, errspkg.ErrTransportUnavailable) {
		t.Fatalf("Connect() error = %v, want ErrTransportUnavailable", err)
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2", got)
	}
}

func TestPublishReconnectsOnceOnFailure(t *testing.T) {
	firstPub := &fakePublisher{failNext: true}
	secondPub := &fakePublisher{}

	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		if n == 1 {
			return transportpkg.Transport{Publisher: firstPub, Subscriber: &fakeSubscriber{}}, nil
		}
		return transportpkg.Transport{Publisher: secondPub, Subscriber: &fakeSubscriber{}}, nil
	})

	c := NewConnector(testConfig(), newTestLogger(), reg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	msg := message.NewMessage("m1", []byte("{}"))
	if err := c.Publish(context.Background(), "users_events", msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2 (initial + one reconnect)", got)
	}
	if secondPub.publishCount() != 1 {
		t.Errorf("replacement publisher delivered %d messages, want 1", secondPub.publishCount())
	}
	if !firstPub.closed {
		t.Error("stale transport should have been closed after the swap")
	}
}

func TestPublishFailsWhenReconnectedTransportAlsoFails(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{
			Publisher:  &fakePublisher{failNext: true},
			Subscriber: &fakeSubscriber{},
		}, nil
	})

	c := NewConnector(testConfig(), newTestLogger(), reg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := c.Publish(context.Background(), "users_events", message.NewMessage("m1", []byte("{}")))
	if !errors.Is(err, errspkg.ErrTransportUnavailable) {
		t.Fatalf("Publish() error = %v, want ErrTransportUnavailable", err)
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2 (no second implicit reconnect)", got)
	}
}

func TestSubscribeReconnectsOnceOnFailure(t *testing.T) {
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{
			Publisher:  &fakePublisher{},
			Subscriber: &fakeSubscriber{failNext: n == 1},
		}, nil
	})

	c := NewConnector(testConfig(), newTestLogger(), reg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := c.Subscribe(ctx, "users_events")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if msgs == nil {
		t.Fatal("Subscribe() returned nil stream")
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2", got)
	}
}

func TestPublishValidation(t *testing.T) {
	c, err := newTestConnector(context.Background(), testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("connector setup: %v", err)
	}
	defer c.Close()

	if err := c.Publish(context.Background(), "", message.NewMessage("m1", nil)); !errors.Is(err, errspkg.ErrChannelRequired) {
		t.Errorf("Publish with empty channel = %v, want ErrChannelRequired", err)
	}
	if _, err := c.Subscribe(context.Background(), ""); !errors.Is(err, errspkg.ErrChannelRequired) {
		t.Errorf("Subscribe with empty channel = %v, want ErrChannelRequired", err)
	}
}

func TestIsConnectedUsesPinger(t *testing.T) {
	pinger := &fakePinger{}
	var builds atomic.Int32
	reg := fakeRegistry(&builds, func(n int32) (transportpkg.Transport, error) {
		return transportpkg.Transport{
			Publisher:  &fakePublisher{},
			Subscriber: &fakeSubscriber{},
			Pinger:     pinger,
		}, nil
	})

	c := NewConnector(testConfig(), newTestLogger(), reg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !c.IsConnected() {
		t.Error("IsConnected() = false with healthy pinger")
	}

	pinger.err = errors.New("connection reset")
	if c.IsConnected() {
		t.Error("IsConnected() = true while ping fails")
	}
}

func TestCloseMakesConnectorUnusable(t *testing.T) {
	c, err := newTestConnector(context.Background(), testConfig(), newTestLogger())
	if err != nil {
		t.Fatalf("connector setup: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.Publish(context.Background(), "users_events", message.NewMessage("m1", nil)); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Errorf("Publish after Close = %v, want ErrBusClosed", err)
	}
	if _, err := c.Subscribe(context.Background(), "users_events"); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrBusClosed", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Errorf("Connect after Close = %v, want ErrBusClosed", err)
	}
}

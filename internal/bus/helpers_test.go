package bus

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	configpkg "github.com/agendabus/agendabus/internal/bus/config"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
	transportpkg "github.com/agendabus/agendabus/transport"
)

// testLogger records every log call so tests can assert on what was logged.
// With shares the recording across children.
type testLogger struct {
	mu      sync.Mutex
	entries []testLogEntry
}

type testLogEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, testLogEntry{level: level, msg: msg, err: err, fields: fields})
}

func (l *testLogger) With(fields loggingpkg.LogFields) loggingpkg.BusLogger { return l }

func (l *testLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *testLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *testLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *testLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *testLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == "error" {
			n++
		}
	}
	return n
}

func (l *testLogger) hasMessage(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return true
		}
	}
	return false
}

// testConfig keeps every delay small enough for tests.
func testConfig() *configpkg.Config {
	return &configpkg.Config{
		ServiceName:           "test-service",
		PubSubSystem:          "channel",
		ReconnectMaxAttempts:  3,
		ReconnectInitialDelay: time.Millisecond,
		ReconnectMaxDelay:     5 * time.Millisecond,
		RequestTimeout:        500 * time.Millisecond,
		WorkerPoolSize:        4,
		PendingSweepInterval:  25 * time.Millisecond,
		ShutdownGracePeriod:   time.Second,
		ListenerRestartDelay:  10 * time.Millisecond,
	}
}

// newChannelRegistry builds transports on the in-memory pubsub. Persistent
// mode lets tests publish without racing the listener's subscribe.
func newChannelRegistry() *transportpkg.Registry {
	reg := transportpkg.NewRegistry()
	reg.Register("channel", func(ctx context.Context, cfg transportpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
		pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
		return transportpkg.Transport{Publisher: pubsub, Subscriber: pubsub}, nil
	})
	return reg
}

// newTestConnector returns a connected connector over the in-memory pubsub.
func newTestConnector(ctx context.Context, conf *configpkg.Config, logger loggingpkg.BusLogger) (*Connector, error) {
	c := NewConnector(conf, logger, newChannelRegistry(), nil)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

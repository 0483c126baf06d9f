package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/agendabus/agendabus/internal/bus/envelope"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	idspkg "github.com/agendabus/agendabus/internal/bus/ids"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
)

// ReplyChannel derives the ephemeral reply channel name for one request.
func ReplyChannel(channel, correlationID string) string {
	return channel + ".reply." + correlationID
}

// pendingRequest is the single-assignment result slot for one in-flight
// request. fulfill wins at most once; later replies with the same correlation
// id are discarded.
type pendingRequest struct {
	correlationID   string
	responseChannel string
	createdAt       time.Time
	deadline        time.Time

	result chan envelope.Envelope
	once   sync.Once
}

func (p *pendingRequest) fulfill(env envelope.Envelope) bool {
	won := false
	p.once.Do(func() {
		p.result <- env
		won = true
	})
	return won
}

func (p *pendingRequest) expired(now time.Time) bool {
	return now.After(p.deadline)
}

// Waiter layers a synchronous-looking request/reply exchange over the
// fire-and-forget bus: it subscribes to an ephemeral reply channel, publishes
// the request carrying a correlation id, and blocks the caller until the
// first matching reply or the deadline. Pending requests live in a map under
// a mutex; a background sweep reclaims entries whose deadline passed without
// a caller collecting them.
type Waiter struct {
	connector *Connector
	logger    loggingpkg.BusLogger
	metrics   *Metrics

	defaultTimeout time.Duration
	sweepInterval  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest

	done      chan struct{}
	closeOnce sync.Once
}

// NewWaiter builds a waiter and starts its expiry sweep.
func NewWaiter(connector *Connector, logger loggingpkg.BusLogger, metrics *Metrics, defaultTimeout, sweepInterval time.Duration) *Waiter {
	w := &Waiter{
		connector:      connector,
		logger:         logger,
		metrics:        metrics,
		defaultTimeout: defaultTimeout,
		sweepInterval:  sweepInterval,
		pending:        make(map[string]*pendingRequest),
		done:           make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// RequestReply publishes a request on channel and blocks until the first
// reply carrying the same correlation id arrives on the derived reply
// channel, or until timeout (the configured default when zero). A timeout is
// returned as ErrResponseTimeout: a normal outcome, the caller decides
// whether the operation is still pending, abandoned, or worth retrying.
func (w *Waiter) RequestReply(ctx context.Context, channel, eventType string, payload map[string]any, timeout time.Duration) (envelope.Envelope, error) {
	if channel == "" {
		return envelope.Envelope{}, errspkg.ErrChannelRequired
	}
	if eventType == "" {
		return envelope.Envelope{}, errspkg.ErrEventTypeRequired
	}
	if timeout <= 0 {
		timeout = w.defaultTimeout
	}

	correlationID := idspkg.NewCorrelationID()
	replyChannel := ReplyChannel(channel, correlationID)

	// Cancelling subCtx tears down the ephemeral subscription, whether the
	// request resolved or timed out.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies, err := w.connector.Subscribe(subCtx, replyChannel)
	if err != nil {
		return envelope.Envelope{}, err
	}

	now := time.Now()
	pr := &pendingRequest{
		correlationID:   correlationID,
		responseChannel: replyChannel,
		createdAt:       now,
		deadline:        now.Add(timeout),
		result:          make(chan envelope.Envelope, 1),
	}
	w.track(pr)
	defer w.untrack(correlationID)

	go w.consumeReplies(pr, replies)

	env := envelope.New(eventType, payload)
	env.CorrelationID = correlationID
	env.ResponseChannel = replyChannel

	msg, err := envelope.ToMessage(env)
	if err != nil {
		return envelope.Envelope{}, err
	}
	msg.SetContext(ctx)

	if err := w.connector.Publish(ctx, channel, msg); err != nil {
		return envelope.Envelope{}, err
	}

	w.metrics.IncRequests()
	w.logger.Debug("request published", loggingpkg.LogFields{
		"channel":        channel,
		"event_type":     eventType,
		"correlation_id": correlationID,
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-pr.result:
		return resp, nil
	case <-timer.C:
		w.metrics.IncRequestTimeouts()
		return envelope.Envelope{}, fmt.Errorf("request %s on %q: %w", correlationID, channel, errspkg.ErrResponseTimeout)
	case <-ctx.Done():
		return envelope.Envelope{}, ctx.Err()
	}
}

// consumeReplies drains the reply stream until the subscription closes. The
// first envelope with the matching correlation id fulfills the request;
// everything else, including duplicates of the winner, is discarded.
func (w *Waiter) consumeReplies(pr *pendingRequest, replies <-chan *message.Message) {
	for msg := range replies {
		env, err := envelope.FromMessage(msg)
		msg.Ack()
		if err != nil {
			w.logger.Debug("dropping malformed reply", loggingpkg.LogFields{
				"response_channel": pr.responseChannel,
			})
			continue
		}
		if env.CorrelationID != pr.correlationID {
			w.logger.Debug("discarding mismatched reply", loggingpkg.LogFields{
				"expected": pr.correlationID,
				"got":      env.CorrelationID,
			})
			continue
		}
		if !pr.fulfill(env) {
			w.logger.Debug("discarding duplicate reply", loggingpkg.LogFields{
				"correlation_id": pr.correlationID,
			})
		}
	}
}

func (w *Waiter) track(pr *pendingRequest) {
	w.mu.Lock()
	w.pending[pr.correlationID] = pr
	n := len(w.pending)
	w.mu.Unlock()
	w.metrics.SetPendingRequests(n)
}

func (w *Waiter) untrack(correlationID string) {
	w.mu.Lock()
	delete(w.pending, correlationID)
	n := len(w.pending)
	w.mu.Unlock()
	w.metrics.SetPendingRequests(n)
}

// PendingCount returns the number of requests awaiting a reply.
func (w *Waiter) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Waiter) sweepLoop() {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.sweep(now)
		}
	}
}

// sweep drops pending requests past their deadline. Callers normally remove
// their own entry, but nothing guarantees every caller polls its request to
// completion, so the sweep bounds memory.
func (w *Waiter) sweep(now time.Time) {
	w.mu.Lock()
	removed := 0
	for id, pr := range w.pending {
		if pr.expired(now) {
			delete(w.pending, id)
			removed++
		}
	}
	n := len(w.pending)
	w.mu.Unlock()

	w.metrics.SetPendingRequests(n)
	if removed > 0 {
		w.logger.Debug("swept expired pending requests", loggingpkg.LogFields{
			"removed":   removed,
			"remaining": n,
		})
	}
}

// Close stops the expiry sweep. In-flight requests still resolve or time out
// on their own.
func (w *Waiter) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agendabus/agendabus/internal/bus/envelope"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
)

// ExecMode selects how a handler is scheduled by the dispatch loop.
type ExecMode int

const (
	// ExecPooled runs the handler on the bounded worker pool. Use this for
	// handlers that block (database calls, outbound requests).
	ExecPooled ExecMode = iota

	// ExecInline runs the handler on the dispatch goroutine. Only for
	// handlers that return promptly.
	ExecInline
)

// Handler processes one decoded envelope. Returned errors are logged with the
// event context and never reach other handlers or the dispatch loop.
type Handler interface {
	HandleEvent(ctx context.Context, env envelope.Envelope) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, env envelope.Envelope) error

func (f HandlerFunc) HandleEvent(ctx context.Context, env envelope.Envelope) error {
	return f(ctx, env)
}

// HandlerRegistration wires a handler to an event type tag. Registrations are
// validated up front so a bad wiring fails at startup, not at dispatch time.
type HandlerRegistration struct {
	// EventType is the envelope type tag this handler consumes.
	EventType string

	Handler Handler

	// Mode defaults to ExecPooled.
	Mode ExecMode

	// Name identifies the handler in logs. Defaults to "<event_type>-handler-<n>".
	Name string
}

type registeredHandler struct {
	name    string
	mode    ExecMode
	handler Handler
}

// Dispatcher routes decoded envelopes to the handlers registered for their
// event type. The registry is read-mostly: registration takes the write lock
// once at startup, dispatch only ever takes the read lock.
type Dispatcher struct {
	logger  loggingpkg.BusLogger
	metrics *Metrics
	tracer  trace.Tracer

	mu       sync.RWMutex
	handlers map[string][]registeredHandler

	pool chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher builds a dispatcher whose pooled handlers are bounded to
// poolSize concurrent goroutines.
func NewDispatcher(logger loggingpkg.BusLogger, metrics *Metrics, poolSize int) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Dispatcher{
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("agendabus"),
		handlers: make(map[string][]registeredHandler),
		pool:     make(chan struct{}, poolSize),
	}
}

// Register wires a handler to an event type. Multiple handlers may be
// registered for the same type; all of them are invoked per matching event.
func (d *Dispatcher) Register(reg HandlerRegistration) error {
	if reg.EventType == "" {
		return errspkg.ErrEventTypeRequired
	}
	if reg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := reg.Name
	if name == "" {
		name = fmt.Sprintf("%s-handler-%d", reg.EventType, len(d.handlers[reg.EventType]))
	}
	d.handlers[reg.EventType] = append(d.handlers[reg.EventType], registeredHandler{
		name:    name,
		mode:    reg.Mode,
		handler: reg.Handler,
	})

	d.logger.Info("handler registered", loggingpkg.LogFields{
		"event_type": reg.EventType,
		"handler":    name,
	})
	return nil
}

// HandlerCount returns how many handlers are registered for an event type.
func (d *Dispatcher) HandlerCount(eventType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType])
}

// Run consumes messages until the stream closes or ctx is cancelled. Each
// message is decoded, acked, and fanned out to the matching handlers.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			d.dispatch(ctx, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *message.Message) {
	env, err := envelope.FromMessage(msg)
	if err != nil {
		d.logger.Error("dropping malformed message", err, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"payload":      string(msg.Payload),
		})
		d.metrics.IncDecodeDrops()
		msg.Ack()
		return
	}

	d.mu.RLock()
	handlers := d.handlers[env.Type]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("no handlers for event", loggingpkg.LogFields{
			"event_id":   env.EventID,
			"event_type": env.Type,
		})
		msg.Ack()
		return
	}

	for _, rh := range handlers {
		if rh.mode == ExecInline {
			d.invoke(ctx, rh, env)
			continue
		}

		d.wg.Add(1)
		go func(rh registeredHandler) {
			defer d.wg.Done()
			// The slot is taken inside the goroutine so a saturated pool
			// queues the handler without stalling the dispatch loop.
			d.pool <- struct{}{}
			defer func() { <-d.pool }()
			d.invoke(ctx, rh, env)
		}(rh)
	}

	msg.Ack()
}

// invoke runs one handler with panic isolation: a panicking or failing
// handler is logged with its event context and never stalls the loop or the
// other handlers registered for the same event.
func (d *Dispatcher) invoke(ctx context.Context, rh registeredHandler, env envelope.Envelope) {
	ctx, span := d.tracer.Start(ctx, "HandleEvent", trace.WithAttributes(
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", env.Type),
		attribute.String("handler", rh.name),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			herr := &errspkg.HandlerError{
				EventID:   env.EventID,
				EventType: env.Type,
				Handler:   rh.name,
				Err:       fmt.Errorf("panic: %v", r),
			}
			d.logger.Error("handler panicked", herr, loggingpkg.LogFields{
				"event_id":   env.EventID,
				"event_type": env.Type,
				"handler":    rh.name,
			})
			d.metrics.IncHandlerFailures(env.Type)
		}
	}()

	if err := rh.handler.HandleEvent(ctx, env); err != nil {
		herr := &errspkg.HandlerError{
			EventID:   env.EventID,
			EventType: env.Type,
			Handler:   rh.name,
			Err:       err,
		}
		d.logger.Error("handler failed", herr, loggingpkg.LogFields{
			"event_id":   env.EventID,
			"event_type": env.Type,
			"handler":    rh.name,
		})
		d.metrics.IncHandlerFailures(env.Type)
		return
	}

	d.metrics.IncDispatched(env.Type)
}

// Wait blocks until all in-flight pooled handlers have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

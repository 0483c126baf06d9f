package bus

import (
	"context"
	"fmt"

	"github.com/agendabus/agendabus/internal/bus/envelope"
	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	loggingpkg "github.com/agendabus/agendabus/internal/bus/logging"
)

// Publish wraps the payload in a fresh envelope and sends it fire-and-forget
// to the named channel. The envelope's event id is returned so route handlers
// can report what was published.
func (b *Bus) Publish(ctx context.Context, channel, eventType string, payload map[string]any) (string, error) {
	if b.closed.Load() {
		return "", errspkg.ErrBusClosed
	}
	if channel == "" {
		return "", errspkg.ErrChannelRequired
	}
	if eventType == "" {
		return "", errspkg.ErrEventTypeRequired
	}

	env := envelope.New(eventType, payload)
	msg, err := envelope.ToMessage(env)
	if err != nil {
		return "", err
	}
	msg.SetContext(ctx)

	if err := b.connector.Publish(ctx, channel, msg); err != nil {
		return "", err
	}

	b.Logger.Debug("event published", loggingpkg.LogFields{
		"channel":    channel,
		"event_type": eventType,
		"event_id":   env.EventID,
	})
	return env.EventID, nil
}

// Reply answers a request envelope: it publishes a new envelope on the
// request's response channel, echoing the request's correlation id so the
// waiting peer can match it.
func (b *Bus) Reply(ctx context.Context, req envelope.Envelope, eventType string, payload map[string]any) error {
	if b.closed.Load() {
		return errspkg.ErrBusClosed
	}
	if req.ResponseChannel == "" || req.CorrelationID == "" {
		return fmt.Errorf("agendabus: event %s carries no reply address", req.EventID)
	}
	if eventType == "" {
		return errspkg.ErrEventTypeRequired
	}

	env := envelope.New(eventType, payload)
	env.CorrelationID = req.CorrelationID

	msg, err := envelope.ToMessage(env)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	if err := b.connector.Publish(ctx, req.ResponseChannel, msg); err != nil {
		return err
	}

	b.Logger.Debug("reply published", loggingpkg.LogFields{
		"response_channel": req.ResponseChannel,
		"event_type":       eventType,
		"correlation_id":   req.CorrelationID,
	})
	return nil
}

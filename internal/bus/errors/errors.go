// Package errors defines the shared error taxonomy for the agendabus core.
package errors

import (
	"fmt"

	sterrors "errors"
)

var (
	// ErrTransportUnavailable reports that the broker could not be reached
	// after exhausting the reconnect backoff budget. Publish and subscribe
	// calls wrap it so callers can retry on the next attempt.
	ErrTransportUnavailable = sterrors.New("agendabus: transport unavailable")

	// ErrResponseTimeout is returned by RequestReply when no matching reply
	// arrives before the deadline. It is a business outcome, not a fault.
	ErrResponseTimeout = sterrors.New("agendabus: response timeout")

	// ErrBusClosed is returned by operations issued after Close.
	ErrBusClosed = sterrors.New("agendabus: bus is closed")

	ErrConfigRequired    = sterrors.New("agendabus: config is required")
	ErrLoggerRequired    = sterrors.New("agendabus: logger is required")
	ErrChannelRequired   = sterrors.New("agendabus: channel name is required")
	ErrEventTypeRequired = sterrors.New("agendabus: event type is required")
	ErrHandlerRequired   = sterrors.New("agendabus: handler is required")
	ErrPayloadRequired   = sterrors.New("agendabus: event payload is required")
)

// DecodeError wraps envelope bytes that could not be parsed. The dispatcher
// logs the offending message and drops it instead of crashing the loop.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("agendabus: malformed envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return sterrors.As(err, &de)
}

// HandlerError carries the event context of a failed handler invocation.
// It is logged by the dispatch loop and never propagated to other handlers.
type HandlerError struct {
	EventID   string
	EventType string
	Handler   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("agendabus: handler %s failed for event %s (%s): %v",
		e.Handler, e.EventID, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

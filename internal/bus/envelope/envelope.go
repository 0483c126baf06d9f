// Package envelope implements the structured message wrapper every calendar
// service exchanges over the broker. All peers, Go or not, agree on this JSON
// shape, so the codec tolerates nothing it cannot round-trip.
package envelope

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/agendabus/agendabus/internal/bus/errors"
	idspkg "github.com/agendabus/agendabus/internal/bus/ids"
	"github.com/agendabus/agendabus/internal/bus/jsoncodec"
)

// Version is the envelope schema version stamped on every publish.
const Version = "1.0"

// Metadata keys mirrored onto the watermill message for logging and routing.
const (
	MetadataKeyEventType     = "event_type"
	MetadataKeyCorrelationID = "correlation_id"
)

// Envelope is the wire format for one event on the bus. CorrelationID and
// ResponseChannel are only set on request/reply traffic.
type Envelope struct {
	EventID         string         `json:"event_id"`
	Type            string         `json:"type"`
	Timestamp       time.Time      `json:"timestamp"`
	Version         string         `json:"version"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	ResponseChannel string         `json:"response_channel,omitempty"`
	Payload         map[string]any `json:"payload"`
}

// New builds an envelope with a fresh event id, the current UTC timestamp and
// the current schema version.
func New(eventType string, payload map[string]any) Envelope {
	return Envelope{
		EventID:   idspkg.NewEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Payload:   payload,
	}
}

// Validate checks the invariants every envelope must hold before it goes on
// the wire or into a handler.
func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	return nil
}

// IsReply reports whether the envelope carries request/reply correlation state.
func (e Envelope) IsReply() bool {
	return e.CorrelationID != ""
}

// Encode serialises the envelope to its JSON wire form.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("agendabus: invalid envelope: %w", err)
	}
	return jsoncodec.Marshal(e)
}

// Decode parses envelope bytes. Malformed input is reported as a *DecodeError
// so the dispatch loop can log and drop it without crashing.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := jsoncodec.Unmarshal(data, &e); err != nil {
		return Envelope{}, &errspkg.DecodeError{Raw: data, Err: err}
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, &errspkg.DecodeError{Raw: data, Err: err}
	}
	return e, nil
}

// ToMessage converts the envelope into a watermill message. The message UUID
// is a ULID independent of the envelope's event id.
func ToMessage(e Envelope) (*message.Message, error) {
	payload, err := Encode(e)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(MetadataKeyEventType, e.Type)
	if e.CorrelationID != "" {
		msg.Metadata.Set(MetadataKeyCorrelationID, e.CorrelationID)
	}
	return msg, nil
}

// FromMessage decodes the envelope carried by a watermill message.
func FromMessage(msg *message.Message) (Envelope, error) {
	return Decode(msg.Payload)
}

// Package ids generates the identifiers used on the bus. Envelope and
// correlation ids are UUIDs because the wire contract is shared with non-Go
// peer services; watermill message UUIDs stay time-sortable ULIDs.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewEventID returns a random UUID for the envelope event_id field.
func NewEventID() string {
	return uuid.NewString()
}

// NewCorrelationID returns a random UUID used to match a reply to its request.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Package event defines the canonical EventRecord model shared by the
// client queue, the wire protocol, and the server-side log and
// projection rebuilder.
package event

import (
	"encoding/json"
	"time"
)

// Type is one of the seven fixed event-type tags the projector
// understands. Unknown values are rejected at ingestion and skipped
// (with a counter bump) at projection time.
type Type string

const (
	WorkoutStarted   Type = "WorkoutStarted"
	WorkoutEnded     Type = "WorkoutEnded"
	WorkoutCancelled Type = "WorkoutCancelled"
	ExerciseAdded    Type = "ExerciseAdded"
	SetCompleted     Type = "SetCompleted"
	SetUpdated       Type = "SetUpdated"
	SetDeleted       Type = "SetDeleted"
)

// KnownTypes lists every type tag the projector and validator
// recognize, in no particular order.
var KnownTypes = map[Type]bool{
	WorkoutStarted:   true,
	WorkoutEnded:     true,
	WorkoutCancelled: true,
	ExerciseAdded:    true,
	SetCompleted:     true,
	SetUpdated:       true,
	SetDeleted:       true,
}

// Status is the client-local lifecycle state of a queued event. It has
// no meaning on the server, where events are durable forever.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// MaxRetryCount is the strike count at which a failed event is parked
// and excluded from automatic sync until reset_failed is invoked.
const MaxRetryCount = 5

// Record is the atomic unit carried through both sides of the sync
// protocol. Payload is kept as raw JSON so that the log can persist
// and forward it without round-tripping through every typed variant;
// per-type payload structs live in payload.go and are used only at
// the validation and projection boundaries.
type Record struct {
	EventID        string          `json:"event_id"`
	EventType      Type            `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	UserID         string          `json:"user_id"`
	DeviceID       string          `json:"device_id"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MarshalJSON guarantees correlation_id is omitted rather than emitted
// as an empty string, and that payload is never emitted as null.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	a := alias(r)
	if a.Payload == nil {
		a.Payload = json.RawMessage("{}")
	}
	return json.Marshal(a)
}

// Less implements the total replay order: lexicographic on
// (device_id, sequence_number). Cross-device ordering is unspecified.
func Less(a, b Record) bool {
	if a.DeviceID != b.DeviceID {
		return a.DeviceID < b.DeviceID
	}
	return a.SequenceNumber < b.SequenceNumber
}

// Package validation implements the per-event validation rules shared
// by the client-side producer and the server-side ingestion boundary:
// required fields present, event_type known, payload matching its
// type's schema, sequence_number positive, and event_id well-formed.
package validation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/internal/event"
)

const MaxBatchSize = 10000

// ValidationError represents a single field validation failure,
// optionally scoped to one event in a batch by EventID.
type ValidationError struct {
	EventID string `json:"event_id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s: %s", e.EventID, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty or
// whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateUUID returns an error if value is not a well-formed UUID.
// The record-level identifiers in the wire contract (event_id,
// device_id, user_id, correlation_id) are UUID strings; identifiers
// inside payloads (workout_id, set_id, ...) are only checked as
// required.
func ValidateUUID(field, value string) *ValidationError {
	if _, err := uuid.Parse(value); err != nil {
		return &ValidationError{Field: field, Message: "must be a valid UUID"}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", "))}
}

// ValidateRange returns an error if the value is outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %.1f and %.1f", min, max)}
	}
	return nil
}

// ValidateEvent validates a single event record against the common
// rules plus its type's payload schema. It returns every violation
// found, each tagged with the event's id so a batch validator can
// report rejected_event_ids without re-deriving context.
func ValidateEvent(e event.Record) []ValidationError {
	c := &Collector{}
	tag := func(field, message string) {
		c.Add(&ValidationError{EventID: e.EventID, Field: field, Message: message})
	}

	if err := ValidateUUID("event_id", e.EventID); err != nil {
		tag(err.Field, err.Message)
	}
	if err := ValidateUUID("device_id", e.DeviceID); err != nil {
		tag(err.Field, err.Message)
	}
	if err := ValidateUUID("user_id", e.UserID); err != nil {
		tag(err.Field, err.Message)
	}
	if e.CorrelationID != "" {
		if err := ValidateUUID("correlation_id", e.CorrelationID); err != nil {
			tag(err.Field, err.Message)
		}
	}
	if !event.KnownTypes[e.EventType] {
		tag("event_type", fmt.Sprintf("unknown event_type %q", e.EventType))
		return c.Errors()
	}
	if e.SequenceNumber <= 0 {
		tag("sequence_number", "must be greater than zero")
	}

	for _, err := range validatePayload(e.EventType, e.Payload) {
		tag(err.Field, err.Message)
	}

	return c.Errors()
}

func validatePayload(typ event.Type, raw []byte) []ValidationError {
	decoded, err := event.DecodePayload(typ, raw)
	if err != nil {
		return []ValidationError{{Field: "payload", Message: "does not parse as an object"}}
	}

	var errs []ValidationError
	req := func(field, value string) {
		if e := ValidateRequired("payload."+field, value); e != nil {
			errs = append(errs, *e)
		}
	}

	switch p := decoded.(type) {
	case event.WorkoutStartedPayload:
		req("workout_id", p.WorkoutID)
		req("started_at", p.StartedAt)
	case event.WorkoutEndedPayload:
		req("workout_id", p.WorkoutID)
		req("ended_at", p.EndedAt)
	case event.WorkoutCancelledPayload:
		req("workout_id", p.WorkoutID)
	case event.ExerciseAddedPayload:
		req("workout_id", p.WorkoutID)
		req("exercise_id", p.ExerciseID)
		req("exercise_name", p.ExerciseName)
	case event.SetCompletedPayload:
		req("workout_id", p.WorkoutID)
		req("exercise_id", p.ExerciseID)
		req("set_id", p.SetID)
		req("completed_at", p.CompletedAt)
		if p.Reps < 0 {
			errs = append(errs, ValidationError{Field: "payload.reps", Message: "must be >= 0"})
		}
		if p.Weight < 0 {
			errs = append(errs, ValidationError{Field: "payload.weight", Message: "must be >= 0"})
		}
	case event.SetUpdatedPayload:
		req("set_id", p.SetID)
		if p.Reps != nil && *p.Reps < 0 {
			errs = append(errs, ValidationError{Field: "payload.reps", Message: "must be >= 0"})
		}
		if p.Weight != nil && *p.Weight < 0 {
			errs = append(errs, ValidationError{Field: "payload.weight", Message: "must be >= 0"})
		}
	case event.SetDeletedPayload:
		req("set_id", p.SetID)
	}
	return errs
}

// ValidateBatch validates request-level fields for a sync batch
// (before per-event validation): device_id and user_id well-formed,
// batch size within MaxBatchSize.
func ValidateBatch(deviceID, userID string, eventCount int) []ValidationError {
	c := &Collector{}
	c.Add(ValidateUUID("device_id", deviceID))
	c.Add(ValidateUUID("user_id", userID))
	if eventCount > MaxBatchSize {
		c.Add(&ValidationError{Field: "events", Message: fmt.Sprintf("exceeds maximum batch size of %d", MaxBatchSize)})
	}
	return c.Errors()
}

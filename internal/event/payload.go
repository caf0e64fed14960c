package event

import (
	"encoding/json"
	"fmt"
)

// WorkoutStartedPayload is the required payload for WorkoutStarted.
type WorkoutStartedPayload struct {
	WorkoutID string `json:"workout_id"`
	StartedAt string `json:"started_at"`
}

// WorkoutEndedPayload is the required payload for WorkoutEnded.
type WorkoutEndedPayload struct {
	WorkoutID string `json:"workout_id"`
	EndedAt   string `json:"ended_at"`
}

// WorkoutCancelledPayload is the required payload for WorkoutCancelled.
type WorkoutCancelledPayload struct {
	WorkoutID string `json:"workout_id"`
}

// ExerciseAddedPayload is the required payload for ExerciseAdded.
type ExerciseAddedPayload struct {
	WorkoutID    string `json:"workout_id"`
	ExerciseID   string `json:"exercise_id"`
	ExerciseName string `json:"exercise_name"`
}

// SetCompletedPayload is the required payload for SetCompleted.
type SetCompletedPayload struct {
	WorkoutID   string  `json:"workout_id"`
	ExerciseID  string  `json:"exercise_id"`
	SetID       string  `json:"set_id"`
	Reps        int64   `json:"reps"`
	Weight      float64 `json:"weight"`
	CompletedAt string  `json:"completed_at"`
}

// SetUpdatedPayload is the payload for SetUpdated. Reps, Weight, and
// CompletedAt are pointers because any subset may be present.
type SetUpdatedPayload struct {
	SetID       string   `json:"set_id"`
	Reps        *int64   `json:"reps,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// SetDeletedPayload is the required payload for SetDeleted.
type SetDeletedPayload struct {
	SetID string `json:"set_id"`
}

// DecodePayload unmarshals raw into the typed payload struct for typ,
// returning an error if raw does not parse as an object or typ is
// unrecognized. It does not perform field-level required/range
// validation; that lives in the validation package so that both the
// client producer and the server ingestion boundary share one set of
// rules.
func DecodePayload(typ Type, raw json.RawMessage) (interface{}, error) {
	switch typ {
	case WorkoutStarted:
		var p WorkoutStartedPayload
		return p, json.Unmarshal(raw, &p)
	case WorkoutEnded:
		var p WorkoutEndedPayload
		return p, json.Unmarshal(raw, &p)
	case WorkoutCancelled:
		var p WorkoutCancelledPayload
		return p, json.Unmarshal(raw, &p)
	case ExerciseAdded:
		var p ExerciseAddedPayload
		return p, json.Unmarshal(raw, &p)
	case SetCompleted:
		var p SetCompletedPayload
		return p, json.Unmarshal(raw, &p)
	case SetUpdated:
		var p SetUpdatedPayload
		return p, json.Unmarshal(raw, &p)
	case SetDeleted:
		var p SetDeletedPayload
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("event: unknown event_type %q", typ)
	}
}

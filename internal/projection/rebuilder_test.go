package projection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/eventlog"
)

func mk(deviceID, userID string, seq int64, typ event.Type, payload string) event.Record {
	return event.Record{
		EventID: uuid.NewString(), EventType: typ, Payload: json.RawMessage(payload),
		UserID: userID, DeviceID: deviceID, SequenceNumber: seq,
	}
}

func TestRebuild_HappySingleWorkout(t *testing.T) {
	log, err := eventlog.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer log.Close()

	device := uuid.NewString()
	user := uuid.NewString()
	w1, s1, ex1 := uuid.NewString(), uuid.NewString(), uuid.NewString()

	_, err = log.Append(context.Background(), device, []event.Record{
		mk(device, user, 1, event.WorkoutStarted, `{"workout_id":"`+w1+`","started_at":"t0"}`),
		mk(device, user, 2, event.SetCompleted, `{"workout_id":"`+w1+`","exercise_id":"`+ex1+`","set_id":"`+s1+`","reps":10,"weight":100,"completed_at":"t1"}`),
		mk(device, user, 3, event.WorkoutEnded, `{"workout_id":"`+w1+`","ended_at":"t2"}`),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	r := New(log.DB(), log, nil)
	result, err := r.Rebuild(context.Background(), "")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if result.WorkoutsWritten != 1 || result.SetsWritten != 1 {
		t.Fatalf("expected 1 workout and 1 set, got %+v", result)
	}

	var status, endedAt string
	if err := log.DB().QueryRow(`SELECT status, ended_at FROM workouts_projection WHERE workout_id = ?`, w1).Scan(&status, &endedAt); err != nil {
		t.Fatalf("query workout: %v", err)
	}
	if status != "completed" || endedAt != "t2" {
		t.Fatalf("expected completed workout ended at t2, got status=%s ended_at=%s", status, endedAt)
	}

	var reps int
	var weight float64
	if err := log.DB().QueryRow(`SELECT reps, weight FROM sets_projection WHERE set_id = ?`, s1).Scan(&reps, &weight); err != nil {
		t.Fatalf("query set: %v", err)
	}
	if reps != 10 || weight != 100 {
		t.Fatalf("expected reps=10 weight=100, got reps=%d weight=%f", reps, weight)
	}
}

func TestRebuild_SetUpdatedAndDeleted(t *testing.T) {
	log, err := eventlog.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer log.Close()

	device := uuid.NewString()
	user := uuid.NewString()
	w1, s1, s2, ex1 := uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString()

	_, err = log.Append(context.Background(), device, []event.Record{
		mk(device, user, 1, event.WorkoutStarted, `{"workout_id":"`+w1+`","started_at":"t0"}`),
		mk(device, user, 2, event.SetCompleted, `{"workout_id":"`+w1+`","exercise_id":"`+ex1+`","set_id":"`+s1+`","reps":10,"weight":100,"completed_at":"t1"}`),
		mk(device, user, 3, event.SetCompleted, `{"workout_id":"`+w1+`","exercise_id":"`+ex1+`","set_id":"`+s2+`","reps":8,"weight":90,"completed_at":"t2"}`),
		mk(device, user, 4, event.SetUpdated, `{"set_id":"`+s1+`","reps":12}`),
		mk(device, user, 5, event.SetDeleted, `{"set_id":"`+s2+`"}`),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	r := New(log.DB(), log, nil)
	result, err := r.Rebuild(context.Background(), "")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if result.SetsWritten != 1 {
		t.Fatalf("expected 1 surviving set after delete, got %d", result.SetsWritten)
	}

	var reps int
	if err := log.DB().QueryRow(`SELECT reps FROM sets_projection WHERE set_id = ?`, s1).Scan(&reps); err != nil {
		t.Fatalf("query set: %v", err)
	}
	if reps != 12 {
		t.Fatalf("expected updated reps=12, got %d", reps)
	}
}

func TestRebuild_UnknownTypeSkippedNotError(t *testing.T) {
	log, err := eventlog.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer log.Close()

	device := uuid.NewString()
	user := uuid.NewString()
	// Insert a row directly with an unrecognized event_type, bypassing
	// ingestion validation, to exercise the rebuilder's forward
	// compatibility path.
	_, err = log.DB().Exec(`
		INSERT INTO events (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at)
		VALUES (?, 'SomeFutureEvent', '{}', ?, ?, 1, '', '2026-01-01T00:00:00Z')
	`, uuid.NewString(), user, device)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := New(log.DB(), log, nil)
	result, err := r.Rebuild(context.Background(), "")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if result.SkippedUnknown != 1 {
		t.Fatalf("expected 1 skipped unknown event, got %d", result.SkippedUnknown)
	}
}

func TestRebuild_DeterministicRegardlessOfArrivalOrder(t *testing.T) {
	run := func(order []event.Record) Result {
		log, err := eventlog.NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		defer log.Close()
		for _, e := range order {
			if _, err := log.Append(context.Background(), e.DeviceID, []event.Record{e}); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		r := New(log.DB(), log, nil)
		result, err := r.Rebuild(context.Background(), "")
		if err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		return result
	}

	device := uuid.NewString()
	user := uuid.NewString()
	w1 := uuid.NewString()
	a := mk(device, user, 1, event.WorkoutStarted, `{"workout_id":"`+w1+`","started_at":"t0"}`)
	b := mk(device, user, 2, event.WorkoutEnded, `{"workout_id":"`+w1+`","ended_at":"t2"}`)

	r1 := run([]event.Record{a, b})
	r2 := run([]event.Record{b, a})
	if r1 != r2 {
		t.Fatalf("expected deterministic rebuild regardless of insertion order, got %+v vs %+v", r1, r2)
	}
}

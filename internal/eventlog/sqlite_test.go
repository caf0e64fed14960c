package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/internal/event"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mkEvent(deviceID, userID string, seq int64, typ event.Type, payload string) event.Record {
	return event.Record{
		EventID:        uuid.NewString(),
		EventType:      typ,
		Payload:        json.RawMessage(payload),
		UserID:         userID,
		DeviceID:       deviceID,
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestAppend_ExactlyOncePerEventID(t *testing.T) {
	s := newTestStore(t)
	device := uuid.NewString()
	user := uuid.NewString()
	e := mkEvent(device, user, 1, event.WorkoutStarted, `{"workout_id":"w1","started_at":"2026-01-01T00:00:00Z"}`)

	if _, err := s.Append(context.Background(), device, []event.Record{e}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	result, err := s.Append(context.Background(), device, []event.Record{e})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if result.AcceptedCount != 1 {
		t.Fatalf("expected accepted count 1 on duplicate, got %d", result.AcceptedCount)
	}

	events, err := s.StreamOrdered(context.Background(), "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one row for duplicate event_id, got %d", len(events))
	}
}

func TestAppend_AckCursorIsMaxSequenceForDevice(t *testing.T) {
	s := newTestStore(t)
	device := uuid.NewString()
	user := uuid.NewString()
	events := []event.Record{
		mkEvent(device, user, 1, event.WorkoutStarted, `{"workout_id":"w1","started_at":"t0"}`),
		mkEvent(device, user, 2, event.SetCompleted, `{"workout_id":"w1","exercise_id":"e1","set_id":"s1","reps":10,"weight":100,"completed_at":"t1"}`),
	}
	result, err := s.Append(context.Background(), device, events)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.Cursor.LastAckedSequence == nil || *result.Cursor.LastAckedSequence != 2 {
		t.Fatalf("expected last_acked_sequence=2, got %+v", result.Cursor)
	}
}

func TestAppend_EmptyBatchCursorIsNil(t *testing.T) {
	s := newTestStore(t)
	device := uuid.NewString()
	result, err := s.Append(context.Background(), device, nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.Cursor.LastAckedSequence != nil {
		t.Fatalf("expected nil last_acked_sequence for device with no events, got %v", *result.Cursor.LastAckedSequence)
	}
}

func TestStreamOrdered_TotalOrderIsDeviceThenSequence(t *testing.T) {
	s := newTestStore(t)
	user := uuid.NewString()
	deviceA := "a-device"
	deviceB := "b-device"

	_, err := s.Append(context.Background(), deviceB, []event.Record{
		mkEvent(deviceB, user, 5, event.WorkoutStarted, `{"workout_id":"w2","started_at":"t"}`),
	})
	if err != nil {
		t.Fatalf("append b: %v", err)
	}
	_, err = s.Append(context.Background(), deviceA, []event.Record{
		mkEvent(deviceA, user, 2, event.WorkoutStarted, `{"workout_id":"w1","started_at":"t"}`),
		mkEvent(deviceA, user, 1, event.WorkoutStarted, `{"workout_id":"w0","started_at":"t"}`),
	})
	if err != nil {
		t.Fatalf("append a: %v", err)
	}

	events, err := s.StreamOrdered(context.Background(), "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].DeviceID != deviceA || events[0].SequenceNumber != 1 {
		t.Fatalf("expected first event to be deviceA seq 1, got %+v", events[0])
	}
	if events[1].DeviceID != deviceA || events[1].SequenceNumber != 2 {
		t.Fatalf("expected second event to be deviceA seq 2, got %+v", events[1])
	}
	if events[2].DeviceID != deviceB {
		t.Fatalf("expected third event on deviceB, got %+v", events[2])
	}
}

func TestRewriteUserID_ReassignsOwnership(t *testing.T) {
	s := newTestStore(t)
	device := uuid.NewString()
	anon := uuid.NewString()
	auth := uuid.NewString()

	_, err := s.Append(context.Background(), device, []event.Record{
		mkEvent(device, anon, 1, event.WorkoutStarted, `{"workout_id":"w1","started_at":"t"}`),
		mkEvent(device, anon, 2, event.WorkoutEnded, `{"workout_id":"w1","ended_at":"t2"}`),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := s.RewriteUserID(context.Background(), anon, auth)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows rewritten, got %d", n)
	}

	events, err := s.StreamOrdered(context.Background(), auth)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events under auth identity, got %d", len(events))
	}
	for _, e := range events {
		if e.DeviceID != device {
			t.Fatalf("device_id must survive merge unchanged, got %s", e.DeviceID)
		}
	}
}

func TestRewriteUserID_ConflictDetected(t *testing.T) {
	s := newTestStore(t)
	device := uuid.NewString()
	anon := uuid.NewString()
	auth := uuid.NewString()

	_, err := s.Append(context.Background(), device, []event.Record{
		mkEvent(device, anon, 1, event.WorkoutStarted, `{"workout_id":"w1","started_at":"t"}`),
	})
	if err != nil {
		t.Fatalf("append anon: %v", err)
	}
	_, err = s.Append(context.Background(), device, []event.Record{
		mkEvent(device, auth, 1, event.WorkoutStarted, `{"workout_id":"w2","started_at":"t"}`),
	})
	if err != nil {
		t.Fatalf("append auth: %v", err)
	}

	_, err = s.RewriteUserID(context.Background(), anon, auth)
	if err != ErrMergeConflict {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}

	events, err := s.StreamOrdered(context.Background(), anon)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected anon events untouched after aborted merge, got %d", len(events))
	}
}

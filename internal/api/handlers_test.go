package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/merge"
	"github.com/liftlog/liftlog/internal/projection"
	"github.com/liftlog/liftlog/internal/syncservice"
)

const testAPIKey = "test-api-key"

func newTestHandler(t *testing.T) (*Handler, *eventlog.SQLiteStore) {
	t.Helper()
	log, err := eventlog.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	rebuilder := projection.New(log.DB(), log, nil)
	merger := merge.New(log, func(ctx context.Context, userID string) error {
		_, err := rebuilder.Rebuild(ctx, userID)
		return err
	})
	svc := syncservice.New(log, nil)
	return NewHandler(svc, rebuilder, merger, testAPIKey, "test"), log
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSync_RequiresIdentity(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestSync_HappyPathEndToEnd(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	device := uuid.NewString()
	user := uuid.NewString()
	w1 := uuid.NewString()
	s1 := uuid.NewString()
	ex1 := uuid.NewString()

	body, _ := json.Marshal(map[string]interface{}{
		"device_id": device,
		"user_id":   user,
		"events": []map[string]interface{}{
			{"event_id": uuid.NewString(), "event_type": "WorkoutStarted", "sequence_number": 1,
				"payload": map[string]string{"workout_id": w1, "started_at": "t0"}},
			{"event_id": uuid.NewString(), "event_type": "SetCompleted", "sequence_number": 2,
				"payload": map[string]interface{}{"workout_id": w1, "exercise_id": ex1, "set_id": s1, "reps": 10, "weight": 100.0, "completed_at": "t1"}},
			{"event_id": uuid.NewString(), "event_type": "WorkoutEnded", "sequence_number": 3,
				"payload": map[string]string{"workout_id": w1, "ended_at": "t2"}},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("X-User-ID", user)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AcceptedCount != 3 || resp.RejectedCount != 0 {
		t.Fatalf("expected accepted=3 rejected=0, got %+v", resp)
	}
}

func TestSync_MalformedDeviceIDReturns422NotServiceUnavailable(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	user := uuid.NewString()
	body, _ := json.Marshal(map[string]interface{}{
		"device_id": "not-a-uuid",
		"user_id":   user,
		"events":    []map[string]interface{}{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("X-User-ID", user)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a malformed device_id, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMerge_RequiresAuthenticatedIdentity(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	anon := uuid.NewString()
	body, _ := json.Marshal(mergeRequest{AnonymousUserID: anon})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/merge", bytes.NewReader(body))
	req.Header.Set("X-Anonymous-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unauthenticated merge attempt, got %d", rec.Code)
	}
}

func TestRebuild_ReturnsCounts(t *testing.T) {
	h, log := newTestHandler(t)
	router := NewRouter(h)

	device := uuid.NewString()
	user := uuid.NewString()
	_, err := log.Append(context.Background(), device, []event.Record{
		{EventID: uuid.NewString(), EventType: event.WorkoutStarted, SequenceNumber: 1, UserID: user, DeviceID: device,
			Payload: json.RawMessage(`{"workout_id":"` + uuid.NewString() + `","started_at":"t0"}`)},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projections/rebuild", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp rebuildResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WorkoutsWritten != 1 || resp.SetsWritten != 0 {
		t.Fatalf("expected workouts_written=1 sets_written=0, got %+v", resp)
	}
}

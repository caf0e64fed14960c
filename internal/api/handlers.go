package api

import (
	"encoding/json"
	"net/http"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/identity"
	"github.com/liftlog/liftlog/internal/merge"
	"github.com/liftlog/liftlog/internal/projection"
	"github.com/liftlog/liftlog/internal/syncservice"
)

// Handler holds the server's HTTP entry points over the sync core.
type Handler struct {
	sync      *syncservice.Service
	rebuilder *projection.Rebuilder
	merger    *merge.Operation
	apiKey    string
	version   string
}

// NewHandler constructs a Handler wiring together the sync core's
// three server-side operations.
func NewHandler(sync *syncservice.Service, rebuilder *projection.Rebuilder, merger *merge.Operation, apiKey, version string) *Handler {
	return &Handler{sync: sync, rebuilder: rebuilder, merger: merger, apiKey: apiKey, version: version}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health is the public liveness endpoint; no auth required.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

type syncEventRequest struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

type syncRequest struct {
	DeviceID string             `json:"device_id"`
	UserID   string             `json:"user_id"`
	Events   []syncEventRequest `json:"events"`
}

type ackCursorResponse struct {
	DeviceID           string `json:"device_id"`
	LastAckedSequence  *int64 `json:"last_acked_sequence"`
}

type syncResponse struct {
	AckCursor        ackCursorResponse `json:"ack_cursor"`
	AcceptedCount    int               `json:"accepted_count"`
	RejectedCount    int               `json:"rejected_count"`
	RejectedEventIDs []string          `json:"rejected_event_ids"`
}

// MarshalJSON guarantees rejected_event_ids is [] rather than null.
func (r syncResponse) MarshalJSON() ([]byte, error) {
	type alias syncResponse
	a := alias(r)
	if a.RejectedEventIDs == nil {
		a.RejectedEventIDs = []string{}
	}
	return json.Marshal(a)
}

// Sync handles POST /api/v1/sync: validates an incoming batch,
// persists it idempotently, and returns the acknowledgment cursor.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	events := make([]event.Record, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, event.Record{
			EventID:        e.EventID,
			EventType:      event.Type(e.EventType),
			Payload:        e.Payload,
			UserID:         req.UserID,
			DeviceID:       req.DeviceID,
			SequenceNumber: e.SequenceNumber,
			CorrelationID:  e.CorrelationID,
		})
	}

	resp, err := h.sync.Sync(r.Context(), syncservice.Request{DeviceID: req.DeviceID, UserID: req.UserID, Events: events})
	if err != nil {
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		AckCursor:        ackCursorResponse{DeviceID: resp.Cursor.DeviceID, LastAckedSequence: resp.Cursor.LastAckedSequence},
		AcceptedCount:    resp.AcceptedCount,
		RejectedCount:    resp.RejectedCount,
		RejectedEventIDs: resp.RejectedEventIDs,
	})
}

type rebuildRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type rebuildResponse struct {
	WorkoutsWritten int   `json:"workouts_written"`
	SetsWritten     int   `json:"sets_written"`
	DurationMS      int64 `json:"duration_ms"`
}

// Rebuild handles POST /api/v1/projections/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	start := nowFunc()
	result, err := h.rebuilder.Rebuild(r.Context(), req.UserID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rebuildResponse{
		WorkoutsWritten: result.WorkoutsWritten,
		SetsWritten:     result.SetsWritten,
		DurationMS:      elapsedMS(start),
	})
}

type mergeRequest struct {
	AnonymousUserID string `json:"anonymous_user_id"`
}

type mergeResponse struct {
	MergedEventCount int64 `json:"merged_event_count"`
}

// Merge handles POST /api/v1/users/merge. The caller must already be
// authenticated; the target identity is taken from the request
// context, never from the request body.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.Authenticated {
		WriteProblem(w, r, http.StatusForbidden, "merge requires an authenticated identity")
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AnonymousUserID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "anonymous_user_id is required")
		return
	}

	result, err := h.merger.Merge(r.Context(), req.AnonymousUserID, id.UserID)
	if err != nil {
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mergeResponse{MergedEventCount: result.MergedEventCount})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

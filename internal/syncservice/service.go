// Package syncservice implements the server-side SyncService: batch
// validation with per-event partial rejection, transactional
// idempotent persistence, and acknowledgment cursor computation.
package syncservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/validation"
)

// ErrValidationRejected is returned when request-level fields
// (device_id, user_id, batch size) fail validation before any event is
// looked at. Unlike ErrStorageFault, this is client-correctable: the
// caller may fix the batch and resubmit.
var ErrValidationRejected = errors.New("syncservice: batch rejected")

// Request is the decoded sync request body.
type Request struct {
	DeviceID string
	UserID   string
	Events   []event.Record
}

// Response is the sync acknowledgment returned to the client.
type Response struct {
	Cursor            eventlog.AckCursor
	AcceptedCount     int
	RejectedCount     int
	RejectedEventIDs  []string
}

// Service validates and persists sync batches.
type Service struct {
	log    eventlog.Store
	logger *slog.Logger
}

// New constructs a Service backed by log.
func New(log eventlog.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{log: log, logger: logger}
}

// Sync validates req, rejecting malformed events individually while
// persisting the remainder, and returns the acknowledgment cursor.
func (s *Service) Sync(ctx context.Context, req Request) (Response, error) {
	batchErrs := validation.ValidateBatch(req.DeviceID, req.UserID, len(req.Events))
	if len(batchErrs) > 0 {
		return Response{}, fmt.Errorf("%w: %v", ErrValidationRejected, batchErrs)
	}

	valid := make([]event.Record, 0, len(req.Events))
	rejected := make([]string, 0)

	for _, e := range req.Events {
		e.DeviceID = req.DeviceID
		if e.UserID == "" {
			e.UserID = req.UserID
		}
		if errs := validation.ValidateEvent(e); len(errs) > 0 {
			rejected = append(rejected, e.EventID)
			s.logger.Warn("event rejected at ingestion",
				"component", "syncservice",
				"action", "validate",
				"event_id", e.EventID,
				"errors", errs,
			)
			continue
		}
		valid = append(valid, e)
	}

	result, err := s.log.Append(ctx, req.DeviceID, valid)
	if err != nil {
		return Response{}, fmt.Errorf("syncservice: append batch: %w", err)
	}

	s.logger.Info("sync batch persisted",
		"component", "syncservice",
		"action", "sync",
		"device_id", req.DeviceID,
		"accepted_count", result.AcceptedCount,
		"rejected_count", len(rejected),
	)

	return Response{
		Cursor:           result.Cursor,
		AcceptedCount:    result.AcceptedCount,
		RejectedCount:    len(rejected),
		RejectedEventIDs: rejected,
	}, nil
}

// Package eventlog is the server-side durable log: append-only
// storage with exactly-once insertion under concurrent clients,
// keyed by event_id, and the queries the merge operation and
// projection rebuilder need over it.
package eventlog

import (
	"context"
	"errors"

	"github.com/liftlog/liftlog/internal/event"
)

// ErrStorageFault is returned when the log is unreachable or corrupt.
var ErrStorageFault = errors.New("eventlog: storage fault")

// ErrMergeConflict is returned when a merge would collide two
// identities' events on the same (device_id, sequence_number).
var ErrMergeConflict = errors.New("eventlog: merge conflict")

// AckCursor is the acknowledgment cursor returned to a syncing
// device: the highest sequence_number among the batch's events for
// that device, each of which is durable once Append returns.
// LastAckedSequence is nil when the batch carries no events for the
// device.
type AckCursor struct {
	DeviceID           string
	LastAckedSequence  *int64
}

// AppendResult reports, for one Append call, the cursor reached for
// the batch's device_id and how many of the requested events are now
// durable (inserted by this call or already present from a prior one).
type AppendResult struct {
	Cursor        AckCursor
	AcceptedCount int
}

// Store is the server-side durable log external collaborator: a
// transactional log store with a uniqueness constraint on event_id.
type Store interface {
	// Append inserts events transactionally using INSERT ... ON
	// CONFLICT(event_id) DO NOTHING; a conflict is not an error, the
	// event counts as accepted. All events in a call are assumed to
	// share device_id (the caller, SyncService, enforces this).
	Append(ctx context.Context, deviceID string, events []event.Record) (AppendResult, error)

	// StreamOrdered returns every event in the log, optionally scoped
	// to userID, ordered by (device_id, sequence_number) ascending —
	// the total replay order.
	StreamOrdered(ctx context.Context, userID string) ([]event.Record, error)

	// RewriteUserID reassigns ownership of every event currently
	// attributed to oldUserID to newUserID, transactionally, and
	// returns the number of rows changed. It first checks for any
	// (device_id, sequence_number) pair present under both identities;
	// if found it returns ErrMergeConflict and changes nothing.
	RewriteUserID(ctx context.Context, oldUserID, newUserID string) (int64, error)
}

// Package merge implements the server side of UserMergeOperation:
// folding an anonymous identity's events into an authenticated
// identity's without corrupting per-device ordering, then triggering
// a scoped projection rebuild.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/liftlog/liftlog/internal/eventlog"
)

// ErrMergeConflict is re-exported from eventlog so callers need not
// import both packages to check for it with errors.Is.
var ErrMergeConflict = eventlog.ErrMergeConflict

// Result reports how many events were reassigned.
type Result struct {
	MergedEventCount int64
}

// Operation performs the server-side half of a user merge: one
// transactional UPDATE events SET user_id = auth WHERE user_id = anon,
// then a rebuild of projections scoped to auth. If overlapping
// (device_id, sequence_number) pairs exist between the two identities
// the rewrite is rolled back entirely and ErrMergeConflict is
// returned; callers must not retry without resolving the collision.
type Operation struct {
	log     eventlog.Store
	rebuild func(ctx context.Context, userID string) error
}

// New constructs an Operation. rebuild is invoked, scoped to the
// authenticated user id, after a successful rewrite; its error (if
// any) is returned to the caller but the rewrite itself is not rolled
// back by a rebuild failure — the log is already durably correct.
func New(log eventlog.Store, rebuild func(ctx context.Context, userID string) error) *Operation {
	return &Operation{log: log, rebuild: rebuild}
}

// Merge reassigns every event owned by anonymousUserID to
// authenticatedUserID and triggers a scoped rebuild.
func (o *Operation) Merge(ctx context.Context, anonymousUserID, authenticatedUserID string) (Result, error) {
	if anonymousUserID == "" || authenticatedUserID == "" {
		return Result{}, errors.New("merge: anonymous_user_id and authenticated user id are required")
	}

	n, err := o.log.RewriteUserID(ctx, anonymousUserID, authenticatedUserID)
	if err != nil {
		if errors.Is(err, eventlog.ErrMergeConflict) {
			return Result{}, ErrMergeConflict
		}
		return Result{}, fmt.Errorf("merge: rewrite user id: %w", err)
	}

	if o.rebuild != nil {
		if err := o.rebuild(ctx, authenticatedUserID); err != nil {
			return Result{}, fmt.Errorf("merge: rebuild after merge: %w", err)
		}
	}

	return Result{MergedEventCount: n}, nil
}

// Package projection implements the ProjectionRebuilder: a
// transactional, deterministic fold of the entire event log into the
// workouts_projection and sets_projection read-model tables.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/liftlog/liftlog/internal/event"
)

// Result reports how many rows the rebuild produced, plus how many
// log entries carried a type the reducer does not recognize.
type Result struct {
	WorkoutsWritten int
	SetsWritten     int
	SkippedUnknown  int
}

// Log is the subset of eventlog.Store the rebuilder needs to read the
// total-ordered stream for a scope.
type Log interface {
	StreamOrdered(ctx context.Context, userID string) ([]event.Record, error)
}

// Rebuilder produces projection tables as a pure reduction of the log.
type Rebuilder struct {
	db     *sql.DB
	log    Log
	logger *slog.Logger
}

// New constructs a Rebuilder. db must be the same database the log
// store writes to, so the truncate+rebuild runs in one transaction
// against the projection tables that live alongside the events table.
func New(db *sql.DB, log Log, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{db: db, log: log, logger: logger}
}

// Rebuild truncates and repopulates the projection tables, scoped to
// userID when non-empty. The output is byte-identical for a given log
// regardless of when the rebuild runs: no partial writes survive an
// error, and the swap is atomic from a reader's perspective.
func (r *Rebuilder) Rebuild(ctx context.Context, userID string) (Result, error) {
	events, err := r.log.StreamOrdered(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("projection: stream log: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("projection: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := truncate(ctx, tx, userID); err != nil {
		return Result{}, err
	}

	res := Result{}
	for _, e := range events {
		applied, err := apply(ctx, tx, e)
		if err != nil {
			return Result{}, fmt.Errorf("projection: apply %s event %s: %w", e.EventType, e.EventID, err)
		}
		if !applied {
			res.SkippedUnknown++
			r.logger.Warn("skipping unknown event type at projection time",
				"component", "projection",
				"action", "rebuild",
				"event_type", e.EventType,
				"event_id", e.EventID,
			)
			continue
		}
	}

	res.WorkoutsWritten, err = countRows(ctx, tx, "workouts_projection", userID, "user_id")
	if err != nil {
		return Result{}, err
	}
	res.SetsWritten, err = countSetsRows(ctx, tx, userID)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("projection: commit: %w", err)
	}

	r.logger.Info("projection rebuild complete",
		"component", "projection",
		"action", "rebuild",
		"workouts_written", res.WorkoutsWritten,
		"sets_written", res.SetsWritten,
		"skipped_unknown", res.SkippedUnknown,
	)
	return res, nil
}

func truncate(ctx context.Context, tx *sql.Tx, userID string) error {
	if userID == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sets_projection`); err != nil {
			return fmt.Errorf("projection: truncate sets_projection: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workouts_projection`); err != nil {
			return fmt.Errorf("projection: truncate workouts_projection: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sets_projection WHERE workout_id IN (SELECT workout_id FROM workouts_projection WHERE user_id = ?)
	`, userID); err != nil {
		return fmt.Errorf("projection: truncate sets_projection scoped: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workouts_projection WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("projection: truncate workouts_projection scoped: %w", err)
	}
	return nil
}

// apply reduces one event into the projection tables. The bool return
// reports whether the type was recognized.
func apply(ctx context.Context, tx *sql.Tx, e event.Record) (bool, error) {
	decoded, err := event.DecodePayload(e.EventType, e.Payload)
	if err != nil {
		if !event.KnownTypes[e.EventType] {
			return false, nil
		}
		return false, err
	}

	switch p := decoded.(type) {
	case event.WorkoutStartedPayload:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workouts_projection (workout_id, user_id, started_at, ended_at, status)
			VALUES (?, ?, ?, NULL, 'in_progress')
			ON CONFLICT(workout_id) DO UPDATE SET user_id = excluded.user_id, started_at = excluded.started_at
		`, p.WorkoutID, e.UserID, p.StartedAt)
		return true, err

	case event.ExerciseAddedPayload:
		// No-op on projections; used only by the client and AI collaborator.
		return true, nil

	case event.SetCompletedPayload:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sets_projection (set_id, workout_id, exercise_id, reps, weight, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(set_id) DO UPDATE SET
				workout_id = excluded.workout_id, exercise_id = excluded.exercise_id,
				reps = excluded.reps, weight = excluded.weight, completed_at = excluded.completed_at
		`, p.SetID, p.WorkoutID, p.ExerciseID, p.Reps, p.Weight, p.CompletedAt)
		return true, err

	case event.SetUpdatedPayload:
		if p.Reps != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE sets_projection SET reps = ? WHERE set_id = ?`, *p.Reps, p.SetID); err != nil {
				return true, err
			}
		}
		if p.Weight != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE sets_projection SET weight = ? WHERE set_id = ?`, *p.Weight, p.SetID); err != nil {
				return true, err
			}
		}
		if p.CompletedAt != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE sets_projection SET completed_at = ? WHERE set_id = ?`, *p.CompletedAt, p.SetID); err != nil {
				return true, err
			}
		}
		return true, nil

	case event.SetDeletedPayload:
		_, err := tx.ExecContext(ctx, `DELETE FROM sets_projection WHERE set_id = ?`, p.SetID)
		return true, err

	case event.WorkoutEndedPayload:
		_, err := tx.ExecContext(ctx, `UPDATE workouts_projection SET ended_at = ?, status = 'completed' WHERE workout_id = ?`, p.EndedAt, p.WorkoutID)
		return true, err

	case event.WorkoutCancelledPayload:
		_, err := tx.ExecContext(ctx, `UPDATE workouts_projection SET status = 'cancelled' WHERE workout_id = ?`, p.WorkoutID)
		return true, err

	default:
		return false, nil
	}
}

func countRows(ctx context.Context, tx *sql.Tx, table, userID, userCol string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	args := []interface{}{}
	if userID != "" {
		query += fmt.Sprintf(` WHERE %s = ?`, userCol)
		args = append(args, userID)
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("projection: count %s: %w", table, err)
	}
	return n, nil
}

func countSetsRows(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM sets_projection`
	args := []interface{}{}
	if userID != "" {
		query = `SELECT COUNT(*) FROM sets_projection s JOIN workouts_projection w ON s.workout_id = w.workout_id WHERE w.user_id = ?`
		args = append(args, userID)
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("projection: count sets_projection: %w", err)
	}
	return n, nil
}

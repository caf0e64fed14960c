// Package clientqueue implements the client-side ClientEventQueue: a
// durable, crash-safe, idempotent local staging area for outgoing
// events. It is the only thing that may delete an event record, and
// the only gate that hides an event from a subsequent sync attempt.
package clientqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/store"
)

// ErrStorageFault is returned when the local queue database is
// unreachable or corrupt, mirroring eventlog.ErrStorageFault on the
// server side.
var ErrStorageFault = errors.New("clientqueue: storage fault")

// Stats counts queued rows by status.
type Stats struct {
	Pending int
	Syncing int
	Failed  int
}

// Queue is the durable local event queue on the client.
type Queue struct {
	db *sql.DB

	mu      sync.Mutex
	nextSeq map[string]int64 // device_id -> next sequence_number to mint
}

// Open opens (creating if necessary) the client queue database at
// dbPath, applies pragmas, and creates the schema. The on-device
// schema is plain CREATE TABLE IF NOT EXISTS rather than goose-managed
// migrations: there is exactly one schema version ever shipped to a
// device, so the generic migration runner used server-side buys
// nothing here.
func Open(dbPath string) (*Queue, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageFault, err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageFault, err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := store.EnablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable pragmas: %v", ErrStorageFault, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageFault, err)
	}

	q := &Queue{db: db, nextSeq: make(map[string]int64)}
	if err := q.recoverFromCrash(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: recover from crash: %v", ErrStorageFault, err)
	}
	return q, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS client_event_queue (
			event_id        TEXT PRIMARY KEY,
			event_type      TEXT NOT NULL,
			payload         TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			device_id       TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			correlation_id  TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			retry_count     INTEGER NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_event_id ON client_event_queue(event_id);
		CREATE INDEX IF NOT EXISTS idx_queue_status ON client_event_queue(status);
		CREATE INDEX IF NOT EXISTS idx_queue_device_sequence ON client_event_queue(device_id, sequence_number);
	`)
	return err
}

// recoverFromCrash transitions rows left in syncing from a prior
// crash back to pending: they are uncertain, not confirmed lost or
// confirmed delivered. Server-side idempotency absorbs any resulting
// duplicate delivery.
func (q *Queue) recoverFromCrash(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `UPDATE client_event_queue SET status = ? WHERE status = ?`,
		string(event.StatusPending), string(event.StatusSyncing))
	return err
}

// NextSequence returns the next sequence_number to mint for deviceID,
// reading max(sequence_number)+1 from the table on first use per
// device and caching thereafter. It is monotonic even if the device
// clock moves backwards, since it never consults the clock.
func (q *Queue) NextSequence(ctx context.Context, deviceID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n, ok := q.nextSeq[deviceID]; ok {
		q.nextSeq[deviceID] = n + 1
		return n, nil
	}

	var maxSeq sql.NullInt64
	if err := q.db.QueryRowContext(ctx, `SELECT MAX(sequence_number) FROM client_event_queue WHERE device_id = ?`, deviceID).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("clientqueue: read max sequence: %w", err)
	}
	next := int64(1)
	if maxSeq.Valid {
		next = maxSeq.Int64 + 1
	}
	q.nextSeq[deviceID] = next + 1
	return next, nil
}

// Enqueue durably stages events in one transaction. A conflicting
// event_id is a no-op: the insert is skipped so the original status,
// retry_count, and sequencing survive untouched.
func (q *Queue) Enqueue(ctx context.Context, events []event.Record) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clientqueue: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO client_event_queue
			(event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at, status, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(event_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("clientqueue: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload := e.Payload
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		if _, err := stmt.ExecContext(ctx, e.EventID, string(e.EventType), string(payload),
			e.UserID, e.DeviceID, e.SequenceNumber, e.CorrelationID, e.CreatedAt.UTC().Format(recordTimeLayout),
			string(event.StatusPending)); err != nil {
			return fmt.Errorf("clientqueue: insert event %s: %w", e.EventID, err)
		}
	}

	return tx.Commit()
}

// GetPending returns pending rows for (deviceID, userID), ordered by
// sequence_number ascending.
func (q *Queue) GetPending(ctx context.Context, deviceID, userID string) ([]event.Record, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at
		FROM client_event_queue
		WHERE status = ? AND device_id = ? AND user_id = ?
		ORDER BY sequence_number ASC
	`, string(event.StatusPending), deviceID, userID)
	if err != nil {
		return nil, fmt.Errorf("clientqueue: get pending: %w", err)
	}
	defer rows.Close()

	results := make([]event.Record, 0)
	for rows.Next() {
		var e event.Record
		var eventType, payload, createdAt string
		if err := rows.Scan(&e.EventID, &eventType, &payload, &e.UserID, &e.DeviceID, &e.SequenceNumber, &e.CorrelationID, &createdAt); err != nil {
			return nil, fmt.Errorf("clientqueue: scan row: %w", err)
		}
		e.EventType = event.Type(eventType)
		e.Payload = json.RawMessage(payload)
		t, err := parseRecordTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("clientqueue: parse created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// MarkSyncing atomically transitions the given ids from pending to
// syncing. This is the only gate hiding events from a subsequent
// GetPending call.
func (q *Queue) MarkSyncing(ctx context.Context, eventIDs []string) error {
	return q.withIDs(ctx, eventIDs, func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `UPDATE client_event_queue SET status = ? WHERE event_id = ? AND status = ?`,
			string(event.StatusSyncing), id, string(event.StatusPending))
		return err
	})
}

// MarkSynced deletes the given rows; nothing else removes events.
func (q *Queue) MarkSynced(ctx context.Context, eventIDs []string) error {
	return q.withIDs(ctx, eventIDs, func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM client_event_queue WHERE event_id = ?`, id)
		return err
	})
}

// MarkFailed increments retry_count for each id and sets status to
// failed once retry_count reaches event.MaxRetryCount, otherwise back
// to pending. The whole id set is handled in a single transaction: if
// any row's update fails, the entire call rolls back rather than
// leaving some rows failed and others pending.
func (q *Queue) MarkFailed(ctx context.Context, eventIDs []string) error {
	return q.withIDs(ctx, eventIDs, func(tx *sql.Tx, id string) error {
		var retryCount int
		if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM client_event_queue WHERE event_id = ?`, id).Scan(&retryCount); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		retryCount++
		status := event.StatusPending
		if retryCount >= event.MaxRetryCount {
			status = event.StatusFailed
		}
		_, err := tx.ExecContext(ctx, `UPDATE client_event_queue SET retry_count = ?, status = ? WHERE event_id = ?`,
			retryCount, string(status), id)
		return err
	})
}

// withIDs runs fn for every id inside one transaction, aggregating
// any per-row errors with multierr before rolling back: mark_failed
// in particular must not leave the id set straddling two different
// outcomes if part of the batch fails.
func (q *Queue) withIDs(ctx context.Context, eventIDs []string, fn func(tx *sql.Tx, id string) error) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clientqueue: begin tx: %w", err)
	}
	defer tx.Rollback()

	var errs error
	for _, id := range eventIDs {
		if err := fn(tx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", id, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("clientqueue: batch operation failed, rolled back: %w", errs)
	}
	return tx.Commit()
}

// ResetFailed transitions failed rows back to pending and zeroes
// retry_count, optionally scoped to userID.
func (q *Queue) ResetFailed(ctx context.Context, userID string) error {
	query := `UPDATE client_event_queue SET status = ?, retry_count = 0 WHERE status = ?`
	args := []interface{}{string(event.StatusPending), string(event.StatusFailed)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	_, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("clientqueue: reset failed: %w", err)
	}
	return nil
}

// RewriteUserID sets user_id := newUserID wherever user_id = oldUserID,
// across all statuses, and returns the number of rows changed.
func (q *Queue) RewriteUserID(ctx context.Context, oldUserID, newUserID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, `UPDATE client_event_queue SET user_id = ? WHERE user_id = ?`, newUserID, oldUserID)
	if err != nil {
		return 0, fmt.Errorf("clientqueue: rewrite user id: %w", err)
	}
	return result.RowsAffected()
}

// Stats counts rows by status. synced is never observed here since a
// synced row is deleted in the same operation that marks it so.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM client_event_queue GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("clientqueue: stats: %w", err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("clientqueue: scan stats: %w", err)
		}
		switch event.Status(status) {
		case event.StatusPending:
			s.Pending = count
		case event.StatusSyncing:
			s.Syncing = count
		case event.StatusFailed:
			s.Failed = count
		}
	}
	return s, rows.Err()
}

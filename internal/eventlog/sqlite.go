package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/store"
)

// SQLiteStore is the SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the event log database
// at dbPath, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageFault, err)
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
	if err := store.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: run migrations: %v", ErrStorageFault, err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying connection pool for components (the
// projection rebuilder, the merge operation) that must share a
// transaction with the log.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, deviceID string, events []event.Record) (AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: begin tx: %v", ErrStorageFault, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: prepare insert: %v", ErrStorageFault, err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload := e.Payload
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		if _, err := stmt.ExecContext(ctx, e.EventID, string(e.EventType), string(payload),
			e.UserID, e.DeviceID, e.SequenceNumber, e.CorrelationID, e.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return AppendResult{}, fmt.Errorf("%w: insert event %s: %v", ErrStorageFault, e.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("%w: commit: %v", ErrStorageFault, err)
	}

	cursor := AckCursor{DeviceID: deviceID}
	for _, e := range events {
		if e.DeviceID == deviceID && (cursor.LastAckedSequence == nil || e.SequenceNumber > *cursor.LastAckedSequence) {
			v := e.SequenceNumber
			cursor.LastAckedSequence = &v
		}
	}
	return AppendResult{Cursor: cursor, AcceptedCount: len(events)}, nil
}

func (s *SQLiteStore) StreamOrdered(ctx context.Context, userID string) ([]event.Record, error) {
	query := `SELECT event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at FROM events`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: stream events: %v", ErrStorageFault, err)
	}
	defer rows.Close()

	events := make([]event.Record, 0)
	for rows.Next() {
		var e event.Record
		var payload, createdAt string
		var eventType string
		if err := rows.Scan(&e.EventID, &eventType, &payload, &e.UserID, &e.DeviceID,
			&e.SequenceNumber, &e.CorrelationID, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrStorageFault, err)
		}
		e.EventType = event.Type(eventType)
		e.Payload = json.RawMessage(payload)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parse created_at: %v", ErrStorageFault, err)
		}
		e.CreatedAt = t
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate events: %v", ErrStorageFault, err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return event.Less(events[i], events[j])
	})
	return events, nil
}

func (s *SQLiteStore) RewriteUserID(ctx context.Context, oldUserID, newUserID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ErrStorageFault, err)
	}
	defer tx.Rollback()

	var conflicts int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events a
		JOIN events b ON a.device_id = b.device_id AND a.sequence_number = b.sequence_number
		WHERE a.user_id = ? AND b.user_id = ?
	`, oldUserID, newUserID).Scan(&conflicts); err != nil {
		return 0, fmt.Errorf("%w: check merge conflict: %v", ErrStorageFault, err)
	}
	if conflicts > 0 {
		return 0, ErrMergeConflict
	}

	result, err := tx.ExecContext(ctx, `UPDATE events SET user_id = ? WHERE user_id = ?`, newUserID, oldUserID)
	if err != nil {
		return 0, fmt.Errorf("%w: rewrite user_id: %v", ErrStorageFault, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrStorageFault, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrStorageFault, err)
	}
	return n, nil
}

// Package store holds ambient, storage-wide concerns shared by the
// server: the goose migration runner applied to the event log
// database at startup.
package store

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/liftlog/liftlog/migrations"
)

// RunMigrations applies all pending database migrations using goose,
// reading from the embedded SQL files in the migrations package.
func RunMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// EnablePragmas sets the SQLite pragmas used by both the server event
// log and the client-local queue: WAL journaling, a generous busy
// timeout so concurrent writers block instead of failing, foreign
// keys, and NORMAL synchronous durability.
func EnablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

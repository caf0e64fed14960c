package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/liftlog/liftlog/internal/projection"
	"github.com/liftlog/liftlog/internal/snapshot"
)

// RebuildingProjection is the subset of *projection.Rebuilder the
// coordinator depends on. Rebuild runs an unscoped (full) rebuild when
// userID is empty.
type RebuildingProjection interface {
	Rebuild(ctx context.Context, userID string) (projection.Result, error)
}

// RebuildCoordinator periodically re-derives the projection tables
// from the event log, independent of any foreground rebuild request.
// This is the backstop that keeps projections fresh even if no client
// ever calls POST /api/v1/projections/rebuild.
type RebuildCoordinator struct {
	rebuilder  RebuildingProjection
	interval   time.Duration
	uploader   snapshot.Uploader
	dbPath     string
	snapshotID string
}

// NewRebuildCoordinator creates a coordinator that triggers full
// rebuilds on the given interval. uploader may be nil or a
// snapshot.NoopUploader to disable export.
func NewRebuildCoordinator(rebuilder RebuildingProjection, interval time.Duration, uploader snapshot.Uploader, dbPath string) *RebuildCoordinator {
	return &RebuildCoordinator{
		rebuilder:  rebuilder,
		interval:   interval,
		uploader:   uploader,
		dbPath:     dbPath,
		snapshotID: "full",
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
func (c *RebuildCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "rebuild-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "rebuild-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.rebuildOnce(ctx)
		}
	}
}

// rebuildOnce runs a single full rebuild cycle and, if an uploader is
// configured, exports the resulting projection database.
func (c *RebuildCoordinator) rebuildOnce(ctx context.Context) {
	start := time.Now()

	result, err := c.rebuilder.Rebuild(ctx, "")
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Error("scheduled rebuild failed",
			"component", "worker",
			"worker", "rebuild-coordinator",
			"error", err,
		)
		return
	}

	slog.Info("scheduled rebuild completed",
		"component", "worker",
		"worker", "rebuild-coordinator",
		"workouts_written", result.WorkoutsWritten,
		"sets_written", result.SetsWritten,
		"skipped_unknown", result.SkippedUnknown,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if c.uploader == nil {
		return
	}
	c.exportSnapshot(ctx)
}

// exportSnapshot uploads the projection database file to S3-compatible
// storage. Upload failures are logged as warnings but are NOT fatal —
// the local projection database remains valid and queryable.
func (c *RebuildCoordinator) exportSnapshot(ctx context.Context) {
	if _, err := os.Stat(c.dbPath); err != nil {
		slog.Warn("snapshot export skipped, projection database not found",
			"component", "worker",
			"worker", "rebuild-coordinator",
			"db_path", c.dbPath,
			"error", err,
		)
		return
	}

	if err := c.uploader.Upload(ctx, c.snapshotID, c.dbPath); err != nil {
		slog.Warn("snapshot export to S3 failed",
			"component", "worker",
			"worker", "rebuild-coordinator",
			"snapshot_id", c.snapshotID,
			"error", err,
		)
		return
	}

	slog.Info("snapshot exported to S3",
		"component", "worker",
		"worker", "rebuild-coordinator",
		"snapshot_id", c.snapshotID,
	)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/config"
	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/projection"
)

var rebuildUserID string

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Run a one-off projection rebuild and exit",
	Long:  "Rebuilds the workouts_projection and sets_projection tables from the event log. With --user, scopes the rebuild to a single user; otherwise rebuilds for every user.",
	RunE:  runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&rebuildUserID, "user", "", "Scope the rebuild to a single user_id")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	log, err := eventlog.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer log.Close()

	rebuilder := projection.New(log.DB(), log, nil)
	result, err := rebuilder.Rebuild(context.Background(), rebuildUserID)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	fmt.Printf("rebuild complete: workouts=%d sets=%d skipped_unknown=%d\n",
		result.WorkoutsWritten, result.SetsWritten, result.SkippedUnknown)
	return nil
}

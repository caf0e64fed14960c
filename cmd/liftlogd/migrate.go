package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/config"
	"github.com/liftlog/liftlog/internal/eventlog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending event log schema migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	log, err := eventlog.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	defer log.Close()

	fmt.Printf("migrations applied to %s\n", cfg.Database.Path)
	return nil
}

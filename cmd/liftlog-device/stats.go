package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local queue statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	stats, err := c.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	total := stats.Pending + stats.Syncing + stats.Failed
	fmt.Printf("queue: %s pending, %s syncing, %s failed (%s total)\n",
		humanize.Comma(int64(stats.Pending)),
		humanize.Comma(int64(stats.Syncing)),
		humanize.Comma(int64(stats.Failed)),
		humanize.Comma(int64(total)),
	)
	return nil
}

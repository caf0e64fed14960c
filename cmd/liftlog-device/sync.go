package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/pkg/device"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger one foreground sync attempt",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	result, err := c.Sync(context.Background())
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if !result.OK {
		// The only way Sync returns OK=false with a nil error is a
		// transport failure reaching the server.
		return fmt.Errorf("%w: %s", device.ErrNetworkUnavailable, result.Message)
	}

	fmt.Printf("sync ok: synced=%d failed=%d\n", result.Synced, result.Failed)
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	return nil
}

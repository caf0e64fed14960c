package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var mergeAnonymousUserID string

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge an anonymous identity's events into the authenticated --user",
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeAnonymousUserID, "anonymous-user", "", "The anonymous user_id to reassign (required)")
	mergeCmd.MarkFlagRequired("anonymous-user")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if flagUserID == "" {
		return fmt.Errorf("%w: --user is required: merge reassigns events to the authenticated identity", errUsage)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	if err := c.Merge(context.Background(), mergeAnonymousUserID); err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	fmt.Printf("merged anonymous user %s into %s\n", mergeAnonymousUserID, flagUserID)
	return nil
}

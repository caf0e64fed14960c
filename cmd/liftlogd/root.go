package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/syncservice"
)

// errUsage marks an error as a CLI usage problem (bad configuration,
// bad flags) rather than a runtime failure, for exit code purposes.
var errUsage = errors.New("liftlogd: usage error")

// Version information set at build time via ldflags:
//
//	-X main.Version=1.0.0
//	-X main.Commit=abc1234
//	-X main.Date=2026-01-30T12:00:00Z
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "liftlogd",
	Short: "liftlogd - event sync server for the workout tracker",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("liftlogd %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rebuildCmd)
}

func main() {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		fmt.Println(err)
		os.Exit(exitCodeFor(cmd, err))
	}
}

// exitCodeFor maps a returned error to the exit codes this core
// documents for its CLI exposures: 0 OK, 2 usage error, 3 storage
// fault, 4 validation failure, 5 network timeout. cmd.SilenceUsage is
// only set once a RunE has started; an error surfacing before that
// (unknown command, bad flag) is itself a usage error.
func exitCodeFor(cmd *cobra.Command, err error) int {
	if cmd == nil || !cmd.SilenceUsage {
		return 2
	}
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, eventlog.ErrStorageFault):
		return 3
	case errors.Is(err, syncservice.ErrValidationRejected):
		return 4
	default:
		return 1
	}
}

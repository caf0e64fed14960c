package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liftlog/liftlog/internal/clientqueue"
	"github.com/liftlog/liftlog/pkg/device"
)

// errUsage marks an error as a CLI usage problem (bad arguments,
// missing required flags) rather than a runtime failure, for exit
// code purposes.
var errUsage = errors.New("liftlog-device: usage error")

var (
	flagLocalPath string
	flagServerURL string
	flagAPIKey    string
	flagDeviceID  string
	flagUserID    string
)

var rootCmd = &cobra.Command{
	Use:   "liftlog-device",
	Short: "liftlog-device - drive a device's local event queue and sync with liftlogd",
	Long:  "A CLI simulator for the device-side SDK: enqueue workout events into a durable local queue, trigger sync, inspect queue stats, and merge an anonymous identity into an authenticated one.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLocalPath, "db", "liftlog-device.db", "Local event queue database path")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "http://localhost:8080", "liftlogd base URL")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Bearer token for authenticated requests")
	rootCmd.PersistentFlags().StringVar(&flagDeviceID, "device", "", "Device identifier (UUID); a new one is generated and printed on each invocation that omits it")
	rootCmd.PersistentFlags().StringVar(&flagUserID, "user", "", "User identifier to attribute new events to")

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(mergeCmd)
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
	case errors.Is(err, clientqueue.ErrStorageFault):
		return 3
	case errors.Is(err, device.ErrNetworkUnavailable), errors.Is(err, device.ErrTimeout):
		return 5
	default:
		return 1
	}
}

// Package device is the device-side SDK: a durable event queue, a
// single-flight sync coordinator, and the HTTP transport that
// together implement the client half of the bi-directional
// synchronization core. It is meant to be embedded in a mobile or
// desktop client; cmd/liftlog-device exercises it as a CLI.
package device

import "time"

// Config configures a Client.
type Config struct {
	LocalPath    string        // client event queue database path, or ":memory:"
	ServerURL    string        // liftlogd base URL
	APIKey       string        // bearer token stamped on authenticated requests
	DeviceID     string        // this device's identifier (a UUID)
	UserID       string        // identity to attribute new events to
	SyncInterval time.Duration // autosync tick interval (default: 5 minutes)
	AutoSync     bool          // start a background sync loop on Initialize
}

// SyncResult is the outcome of one sync() call.
type SyncResult struct {
	Synced  int
	Failed  int
	OK      bool
	Message string
}

// Package e2e exercises the sync core end to end: a real SQLite-backed
// event log, the HTTP router, and the device SDK's queue and
// transport, wired together the way a client and server would be in
// production.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/liftlog/liftlog/internal/api"
	"github.com/liftlog/liftlog/internal/eventlog"
	"github.com/liftlog/liftlog/internal/merge"
	"github.com/liftlog/liftlog/internal/projection"
	"github.com/liftlog/liftlog/internal/syncservice"
	"github.com/liftlog/liftlog/pkg/device"
)

const testAPIKey = "e2e-test-key"

// testServer bundles a running httptest server with the underlying
// event log, so tests can inspect server-side state directly.
type testServer struct {
	URL string
	Log *eventlog.SQLiteStore
}

// newTestServer wires a full server stack against an in-memory SQLite
// database and starts it behind an httptest.Server.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log, err := eventlog.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	rebuilder := projection.New(log.DB(), log, nil)
	merger := merge.New(log, func(ctx context.Context, userID string) error {
		_, err := rebuilder.Rebuild(ctx, userID)
		return err
	})
	svc := syncservice.New(log, nil)

	handler := api.NewHandler(svc, rebuilder, merger, testAPIKey, "e2e")
	router := api.NewRouter(handler)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{URL: srv.URL, Log: log}
}

// newTestDevice constructs a device.Client pointed at srv, with its
// own in-memory local queue.
func newTestDevice(t *testing.T, srv *testServer, deviceID, userID string) *device.Client {
	t.Helper()

	c, err := device.New(device.Config{
		LocalPath: ":memory:",
		ServerURL: srv.URL,
		APIKey:    testAPIKey,
		DeviceID:  deviceID,
		UserID:    userID,
	})
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

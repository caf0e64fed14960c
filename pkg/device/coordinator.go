package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/liftlog/liftlog/internal/clientqueue"
)

// ErrSyncInProgress is returned when a sync is already in flight; the
// caller sees it immediately with no side effects and no queued
// second attempt.
var ErrSyncInProgress = errors.New("device: sync already in progress")

// Coordinator is the single-flight driver that extracts a batch from
// the queue, submits it via the transport, and applies acknowledgments.
// is_syncing is a type-safe single-acquire token (an atomic
// compare-and-swap), not a mutex: a blocked second caller must be
// rejected outright, never made to wait.
type Coordinator struct {
	queue     *clientqueue.Queue
	transport *Transport
	isSyncing atomic.Bool
}

// NewCoordinator constructs a Coordinator over queue and transport.
func NewCoordinator(queue *clientqueue.Queue, transport *Transport) *Coordinator {
	return &Coordinator{queue: queue, transport: transport}
}

// Sync performs one single-flight end-to-end sync for (deviceID,
// userID), following the seven-step algorithm in the component design:
// acquire the flag, fetch pending, mark syncing, transmit, apply the
// ack, release the flag.
func (c *Coordinator) Sync(ctx context.Context, deviceID, userID string) (SyncResult, error) {
	if !c.isSyncing.CompareAndSwap(false, true) {
		return SyncResult{OK: false, Message: "already in progress"}, ErrSyncInProgress
	}
	defer c.isSyncing.Store(false)

	pending, err := c.queue.GetPending(ctx, deviceID, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("device: fetch pending: %w", err)
	}
	if len(pending) == 0 {
		return SyncResult{OK: true, Synced: 0}, nil
	}

	ids := make([]string, len(pending))
	wire := make([]syncEventWire, len(pending))
	for i, e := range pending {
		ids[i] = e.EventID
		payload := e.Payload
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		wire[i] = syncEventWire{
			EventID: e.EventID, EventType: string(e.EventType), Payload: payload,
			SequenceNumber: e.SequenceNumber, CorrelationID: e.CorrelationID,
		}
	}

	if err := c.queue.MarkSyncing(ctx, ids); err != nil {
		return SyncResult{}, fmt.Errorf("device: mark syncing: %w", err)
	}

	resp, err := c.transport.Sync(ctx, deviceID, userID, wire)
	if err != nil {
		if markErr := c.queue.MarkFailed(ctx, ids); markErr != nil {
			return SyncResult{}, fmt.Errorf("device: sync failed (%v) and mark failed also failed: %w", err, markErr)
		}
		return SyncResult{OK: false, Failed: len(ids), Message: err.Error()}, nil
	}

	rejected := make(map[string]bool, len(resp.RejectedEventIDs))
	for _, id := range resp.RejectedEventIDs {
		rejected[id] = true
	}

	var synced, failed []string
	for _, id := range ids {
		if rejected[id] {
			failed = append(failed, id)
		} else {
			synced = append(synced, id)
		}
	}

	if len(synced) > 0 {
		if err := c.queue.MarkSynced(ctx, synced); err != nil {
			return SyncResult{}, fmt.Errorf("device: mark synced: %w", err)
		}
	}
	if len(failed) > 0 {
		if err := c.queue.MarkFailed(ctx, failed); err != nil {
			return SyncResult{}, fmt.Errorf("device: mark failed: %w", err)
		}
	}

	return SyncResult{
		OK:      true,
		Synced:  len(synced),
		Failed:  len(failed),
		Message: fmt.Sprintf("synced %d, rejected %d", len(synced), len(failed)),
	}, nil
}

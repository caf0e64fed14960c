package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/liftlog/liftlog/internal/clientqueue"
	"github.com/liftlog/liftlog/internal/clock"
	"github.com/liftlog/liftlog/internal/event"
	"github.com/liftlog/liftlog/internal/validation"
)

const defaultSyncInterval = 5 * time.Minute

// Client is the embeddable device-side SDK: a durable queue, a
// single-flight coordinator, and an optional background autosync
// loop, wired together the way pkg/recall's Client wires its Store
// and Syncer.
type Client struct {
	cfg         Config
	clock       clock.Clock
	queue       *clientqueue.Queue
	coordinator *Coordinator
	transport   *Transport

	mu       sync.RWMutex
	closed   bool
	syncDone chan struct{}
}

// New constructs a Client. It does not start autosync; call
// Initialize for that.
func New(cfg Config) (*Client, error) {
	if cfg.LocalPath == "" {
		return nil, errors.New("device: LocalPath is required")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("device: ServerURL is required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("device: DeviceID is required")
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = defaultSyncInterval
	}

	queue, err := clientqueue.Open(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("device: open queue: %w", err)
	}
	transport := NewTransport(cfg.ServerURL, cfg.APIKey)

	return &Client{
		cfg:         cfg,
		clock:       clock.Real{},
		queue:       queue,
		coordinator: NewCoordinator(queue, transport),
		transport:   transport,
		syncDone:    make(chan struct{}),
	}, nil
}

// Initialize performs a best-effort bootstrap sync (errors are
// swallowed: offline-first means startup never blocks on the
// network) and starts the autosync loop if configured.
func (c *Client) Initialize(ctx context.Context) {
	if _, err := c.coordinator.Sync(ctx, c.cfg.DeviceID, c.cfg.UserID); err != nil {
		// Best-effort: the queue remains the durable truth regardless.
	}
	if c.cfg.AutoSync {
		go c.syncLoop()
	}
}

// Record enqueues a new event for the given type and payload, minting
// a fresh event_id and the next sequence_number for this device. The
// event is checked with validation.ValidateEvent first and is not
// enqueued if it fails.
func (c *Client) Record(ctx context.Context, typ event.Type, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("device: client is closed")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("device: marshal payload: %w", err)
	}
	seq, err := c.queue.NextSequence(ctx, c.cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("device: mint sequence number: %w", err)
	}

	rec := event.Record{
		EventID:        uuid.NewString(),
		EventType:      typ,
		Payload:        raw,
		UserID:         c.cfg.UserID,
		DeviceID:       c.cfg.DeviceID,
		SequenceNumber: seq,
		CreatedAt:      c.clock.Now(),
	}
	if errs := validation.ValidateEvent(rec); len(errs) > 0 {
		return fmt.Errorf("device: invalid event: %v", errs)
	}
	return c.queue.Enqueue(ctx, []event.Record{rec})
}

// Sync triggers one foreground sync attempt.
func (c *Client) Sync(ctx context.Context) (SyncResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coordinator.Sync(ctx, c.cfg.DeviceID, c.cfg.UserID)
}

// Stats returns current queue statistics.
func (c *Client) Stats(ctx context.Context) (clientqueue.Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue.Stats(ctx)
}

// Merge performs the client half of UserMergeOperation: rewrite the
// local queue from anonymousUserID to the client's current (now
// authenticated) UserID, reset any failed events under the new
// identity, force a sync, then call the server merge endpoint.
func (c *Client) Merge(ctx context.Context, anonymousUserID string) error {
	c.mu.Lock()
	authenticatedUserID := c.cfg.UserID
	c.mu.Unlock()

	if _, err := c.queue.RewriteUserID(ctx, anonymousUserID, authenticatedUserID); err != nil {
		return fmt.Errorf("device: rewrite local queue user id: %w", err)
	}
	if err := c.queue.ResetFailed(ctx, authenticatedUserID); err != nil {
		return fmt.Errorf("device: reset failed under new identity: %w", err)
	}
	if _, err := c.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		return fmt.Errorf("device: forced sync during merge: %w", err)
	}
	if _, err := c.transport.Merge(ctx, authenticatedUserID, anonymousUserID); err != nil {
		return fmt.Errorf("device: server merge call: %w", err)
	}
	return nil
}

// Shutdown stops the autosync loop, performs a final best-effort
// sync, and closes the queue.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.syncDone)
	c.mu.Unlock()

	_, _ = c.coordinator.Sync(ctx, c.cfg.DeviceID, c.cfg.UserID)
	return c.queue.Close()
}

// syncLoop drives autosync on a ticker, backing off exponentially
// (no jitter, at most 5 retries) on consecutive failures via go-retry
// so a persistently offline device does not hammer the server.
func (c *Client) syncLoop() {
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	backoff := retry.NewExponential(time.Second)
	backoff = retry.WithMaxRetries(5, backoff)

	for {
		select {
		case <-c.syncDone:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
				result, err := c.Sync(ctx)
				if err != nil && !errors.Is(err, ErrSyncInProgress) {
					return retry.RetryableError(err)
				}
				if !result.OK {
					return retry.RetryableError(fmt.Errorf("device: sync not ok: %s", result.Message))
				}
				return nil
			})
			cancel()
		}
	}
}

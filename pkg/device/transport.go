package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNetworkUnavailable and ErrTimeout are the transport-level error
// kinds a SyncCoordinator distinguishes from a validation rejection:
// both return events to pending with an incremented retry count.
var (
	ErrNetworkUnavailable = errors.New("device: network unavailable")
	ErrTimeout            = errors.New("device: request timed out")
)

// syncEventWire is the wire shape of one event inside a sync request.
type syncEventWire struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

type syncRequestWire struct {
	DeviceID string          `json:"device_id"`
	UserID   string          `json:"user_id"`
	Events   []syncEventWire `json:"events"`
}

type ackCursorWire struct {
	DeviceID           string `json:"device_id"`
	LastAckedSequence  *int64 `json:"last_acked_sequence"`
}

type syncResponseWire struct {
	AckCursor         ackCursorWire `json:"ack_cursor"`
	AcceptedCount     int           `json:"accepted_count"`
	RejectedCount     int           `json:"rejected_count"`
	RejectedEventIDs  []string      `json:"rejected_event_ids"`
}

type mergeRequestWire struct {
	AnonymousUserID string `json:"anonymous_user_id"`
}

type mergeResponseWire struct {
	MergedEventCount int64 `json:"merged_event_count"`
}

// Transport is the HTTP client for the sync protocol.
type Transport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTransport constructs a Transport with a bounded per-request
// timeout, following the 30s default used elsewhere in this module.
func NewTransport(baseURL, apiKey string) *Transport {
	return &Transport{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks server reachability via the health endpoint.
func (t *Transport) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("device: build health request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health check returned %d", ErrNetworkUnavailable, resp.StatusCode)
	}
	return nil
}

// Sync submits one batch as a single request, in sequence_number
// ascending order per the ordering guarantee in the component design.
func (t *Transport) Sync(ctx context.Context, deviceID, userID string, events []syncEventWire) (syncResponseWire, error) {
	body, err := json.Marshal(syncRequestWire{DeviceID: deviceID, UserID: userID, Events: events})
	if err != nil {
		return syncResponseWire{}, fmt.Errorf("device: marshal sync request: %w", err)
	}

	var out syncResponseWire
	if err := t.sendRequestAs(ctx, http.MethodPost, "/api/v1/sync", body, &out, userID); err != nil {
		return syncResponseWire{}, err
	}
	return out, nil
}

// Merge calls the server merge endpoint under the authenticated token.
// userID is the caller's authenticated identity, stamped via X-User-ID
// so the server's identity provider can resolve it from context.
func (t *Transport) Merge(ctx context.Context, userID, anonymousUserID string) (mergeResponseWire, error) {
	body, err := json.Marshal(mergeRequestWire{AnonymousUserID: anonymousUserID})
	if err != nil {
		return mergeResponseWire{}, fmt.Errorf("device: marshal merge request: %w", err)
	}
	var out mergeResponseWire
	if err := t.sendRequestAs(ctx, http.MethodPost, "/api/v1/users/merge", body, &out, userID); err != nil {
		return mergeResponseWire{}, err
	}
	return out, nil
}

// sendRequestAs stamps the identity headers AuthMiddleware expects: an
// authenticated bearer token plus X-User-ID when apiKey is configured,
// or X-Anonymous-User-ID otherwise.
func (t *Transport) sendRequestAs(ctx context.Context, method, path string, body []byte, out interface{}, userID string) error {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("device: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		req.Header.Set("X-User-ID", userID)
	} else {
		req.Header.Set("X-Anonymous-User-ID", userID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetworkUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: server returned %d: %s", ErrNetworkUnavailable, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("device: decode response: %w", err)
		}
	}
	return nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
)

// ErrHTTPClosed is returned once the HTTP transport is closed.
var ErrHTTPClosed = errors.New("http transport closed")

// DispatchRequest is the body of POST /v1/sessions/:id/events.
type DispatchRequest struct {
	EventID        int64  `json:"event_id"`
	DispatchTimeMs *int64 `json:"dispatch_time_ms,omitempty"`
}

// DispatchResponse reports whether the daemon armed a deadline.
type DispatchResponse struct {
	SessionID int32 `json:"session_id"`
	EventID   int64 `json:"event_id"`
	Tracked   bool  `json:"tracked"`
	Forwarded bool  `json:"forwarded"`
}

// AckRequest is the body of POST /v1/sessions/:id/ack.
type AckRequest struct {
	EventID int64 `json:"event_id"`
}

// SessionState is returned by the session endpoints.
type SessionState struct {
	SessionID     int32  `json:"session_id"`
	Frozen        bool   `json:"frozen"`
	PendingEvents int    `json:"pending_events"`
	PID           int32  `json:"pid"`
	BundleName    string `json:"bundle_name"`
}

// APIError is the daemon's error body.
type APIError struct {
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anrd responded %d: %s", e.Status, e.Message)
}

// HTTP talks to the daemon's REST API. As a heartbeat.Transport it posts
// acks in the background so the caller's run loop never waits on the
// network.
type HTTP struct {
	client *resty.Client
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHTTP creates a client for the daemon at base.
func NewHTTP(base string, timeout time.Duration, logger *logging.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "anrclient")

	return &HTTP{
		client: client,
		logger: logger.Named("http"),
	}
}

// WithClientID tags every request with the consumer's instance id.
func (h *HTTP) WithClientID(clientID string) *HTTP {
	h.client.SetHeader(ClientIDHeader, clientID)
	return h
}

func sessionPath(sessionID int32, suffix string) string {
	return "/v1/sessions/" + strconv.FormatInt(int64(sessionID), 10) + suffix
}

func (h *HTTP) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &APIError{}
	req := h.client.R().SetContext(ctx).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		return apiErr
	}
	return nil
}

// Dispatch reports a dispatched event. dispatchTimeMs nil lets the daemon
// stamp it with its own clock.
func (h *HTTP) Dispatch(ctx context.Context, sessionID int32, eventID int64, dispatchTimeMs *int64) (DispatchResponse, error) {
	var out DispatchResponse
	err := h.do(ctx, resty.MethodPost, sessionPath(sessionID, "/events"),
		DispatchRequest{EventID: eventID, DispatchTimeMs: dispatchTimeMs}, &out)
	return out, err
}

// Ack acknowledges every event of sessionID up to eventID.
func (h *HTTP) Ack(ctx context.Context, sessionID int32, eventID int64) (SessionState, error) {
	var out SessionState
	err := h.do(ctx, resty.MethodPost, sessionPath(sessionID, "/ack"), AckRequest{EventID: eventID}, &out)
	return out, err
}

// Session fetches the state of a session.
func (h *HTTP) Session(ctx context.Context, sessionID int32) (SessionState, error) {
	var out SessionState
	err := h.do(ctx, resty.MethodGet, sessionPath(sessionID, ""), nil, &out)
	return out, err
}

// SetAppInfo registers the process behind a session.
func (h *HTTP) SetAppInfo(ctx context.Context, sessionID int32, pid int32, bundleName string) error {
	body := map[string]any{"pid": pid, "bundle_name": bundleName}
	return h.do(ctx, resty.MethodPut, sessionPath(sessionID, "/app"), body, nil)
}

// SendAck implements heartbeat.Transport.
func (h *HTTP) SendAck(sessionID int32, eventID int64) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.logger.Warn("ack dropped, transport closed", logging.Session(sessionID), logging.Event(eventID))
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		if _, err := h.Ack(context.Background(), sessionID, eventID); err != nil {
			h.logger.Warn("ack not delivered",
				logging.Session(sessionID), logging.Event(eventID), zap.Error(err))
		}
	}()
}

// Close waits for acks in flight.
func (h *HTTP) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHTTPClosed
	}
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

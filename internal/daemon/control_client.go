package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ControlError is a non-2xx reply from the control socket.
type ControlError struct {
	Status  int
	Code    string
	Message string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// ControlClient talks to a running daemon over its control socket.
type ControlClient struct {
	http *http.Client
}

// NewControlClient creates a client for socketPath. timeout bounds each call;
// saves run a buffer command, so keep it generous.
func NewControlClient(socketPath string, timeout time.Duration) *ControlClient {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &ControlClient{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
				DisableKeepAlives: true,
			},
		},
	}
}

// Save asks the daemon to save the buffer. An empty mode uses the default.
func (c *ControlClient) Save(ctx context.Context, mode string) (*SaveResponse, error) {
	var resp SaveResponse
	if err := c.do(ctx, http.MethodPost, "/save", SaveRequest{Mode: mode, Source: "cli"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restart asks the daemon to restart the buffer and reset its schedule.
func (c *ControlClient) Restart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/restart", nil, nil)
}

// Reload asks the daemon to re-read its config and custom names.
func (c *ControlClient) Reload(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/reload", nil, nil)
}

// Health returns the daemon's liveness report.
func (c *ControlClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ControlClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://smart-replays"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %v", ErrNotRunning, err)
		}
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &ControlError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

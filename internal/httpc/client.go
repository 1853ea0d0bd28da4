// Package httpc is the HTTP client for the robot's telemetry API.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-playbot/internal/log"
	"github.com/teslashibe/go-playbot/pkg/control"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultConnectTimeout = 2 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// ErrRejected wraps a non-2xx answer from the robot.
var ErrRejected = errors.New("httpc: request rejected")

// NewHTTPClient returns an http.Client with bounded connect and overall
// timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client talks to one robot.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for base, e.g. http://playbot.local:8080. A nil
// httpClient uses NewHTTPClient(DefaultTimeout).
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

// Status fetches the latest control loop snapshot.
func (c *Client) Status(ctx context.Context) (control.Snapshot, error) {
	var snap control.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap)
	return snap, err
}

// Logs fetches the retained log history.
func (c *Client) Logs(ctx context.Context) ([]log.Entry, error) {
	var entries []log.Entry
	err := c.do(ctx, http.MethodGet, "/api/logs", nil, &entries)
	return entries, err
}

// Send queues a protocol command as if it had arrived on the link. It
// returns the id the robot assigned.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"command": command}
	err := c.do(ctx, http.MethodPost, "/api/commands", body, &resp)
	return resp.ID, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%w: %s %s: %d %s", ErrRejected, method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

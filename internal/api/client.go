// Package api is a Go client for the ridemap HTTP surface.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ridemap/ridemap/pkg/core"
)

// Client talks to a running ridemap server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// CreateSession opens a new map session and returns its ID and snapshot.
func (c *Client) CreateSession() (string, core.Snapshot, error) {
	var out struct {
		ID       string        `json:"id"`
		Snapshot core.Snapshot `json:"snapshot"`
	}
	if err := c.do(http.MethodPost, "/api/sessions", nil, &out); err != nil {
		return "", core.Snapshot{}, err
	}
	return out.ID, out.Snapshot, nil
}

// Snapshot fetches the render state of a session.
func (c *Client) Snapshot(sessionID string) (core.Snapshot, error) {
	var snap core.Snapshot
	err := c.do(http.MethodGet, sessionPath(sessionID, ""), nil, &snap)
	return snap, err
}

// CloseSession ends a session on the server.
func (c *Client) CloseSession(sessionID string) error {
	return c.do(http.MethodDelete, sessionPath(sessionID, ""), nil, nil)
}

// Features fetches the session layer as raw GeoJSON.
func (c *Client) Features(sessionID string) ([]byte, error) {
	var raw json.RawMessage
	err := c.do(http.MethodGet, sessionPath(sessionID, "/features"), nil, &raw)
	return raw, err
}

// Command sends a command and decodes its result into out, which may be nil.
func (c *Client) Command(sessionID, command string, args []string, out any) error {
	body := map[string]any{"command": command, "args": args}
	var wrapper struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.do(http.MethodPost, sessionPath(sessionID, "/commands"), body, &wrapper); err != nil {
		return err
	}
	if out == nil || len(wrapper.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(wrapper.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", command, err)
	}
	return nil
}

// Notifications drains the pending notifications of a session.
func (c *Client) Notifications(sessionID string) ([]core.Notification, error) {
	var out []core.Notification
	err := c.do(http.MethodGet, sessionPath(sessionID, "/notifications"), nil, &out)
	return out, err
}

// Trips returns the trip history of a session.
func (c *Client) Trips(sessionID string) ([]core.Trip, error) {
	var out []core.Trip
	err := c.do(http.MethodGet, sessionPath(sessionID, "/trips"), nil, &out)
	return out, err
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

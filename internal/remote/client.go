// Package remote carries confirmation requests for global settings to the
// remote peer and reports the peer's acknowledgement code.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/kalambet/wterm/internal/settings"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 64 << 10
)

// EventRequest is the body posted for every confirmation.
type EventRequest struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Client talks to the peer's event endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the peer at baseURL. A timeout <= 0 uses 10s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTPClient creates a client using hc (for testing).
func NewClientWithHTTPClient(baseURL, token string, hc *http.Client) *Client {
	c := NewClient(baseURL, token, 0)
	c.httpClient = hc
	return c
}

// Confirm posts event with payload and returns the peer's ack code.
func (c *Client) Confirm(ctx context.Context, event string, payload any) (int, error) {
	id := uuid.New().String()
	body, err := json.Marshal(EventRequest{ID: id, Event: event, Payload: payload})
	if err != nil {
		return settings.AckRejected, fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/events/"+url.PathEscape(event), bytes.NewReader(body))
	if err != nil {
		return settings.AckRejected, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return settings.AckRejected, fmt.Errorf("sending %s: %w", event, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return settings.AckRejected, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return settings.AckRejected, fmt.Errorf("peer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	ack := gjson.GetBytes(data, "ack")
	if ack.Type != gjson.Number {
		return settings.AckRejected, fmt.Errorf("peer response has no numeric ack: %s", strings.TrimSpace(string(data)))
	}
	return int(ack.Int()), nil
}

// Health checks the peer's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer health returned %d", resp.StatusCode)
	}
	return nil
}

// Package api is the HTTP client for the chat backend's REST surface. The
// realtime layer only needs channel queries; everything else about the
// request layer (auth refresh, retries) belongs to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

// Credentials supplies what every request needs. Each func is read per
// request so a refreshed token or a new connection id is picked up.
type Credentials struct {
	APIKey       string
	Token        func() string
	ConnectionID func() string
}

// Client is a JSON client for the chat REST API.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	gate    *Gate
}

func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: 10 * time.Second},
		gate:    NewGate(),
	}
}

// Gate returns the hold/release gate requests wait on during a token
// refresh.
func (c *Client) Gate() *Gate {
	return c.gate
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// QueryChannels runs a channel query. With Watch set the server starts
// pushing events for every returned channel to the current connection.
func (c *Client) QueryChannels(ctx context.Context, q ChannelsQuery) (*QueryChannelsResponse, error) {
	var out QueryChannelsResponse
	if err := c.do(ctx, http.MethodPost, "/channels", q.payload(c.connectionID()), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopWatching tells the server to stop pushing events for cid to the
// current connection.
func (c *Client) StopWatching(ctx context.Context, cid chat.ChannelID) error {
	path := fmt.Sprintf("/channels/%s/%s/stop-watching", url.PathEscape(cid.Type), url.PathEscape(cid.ID))
	body := map[string]string{"connection_id": c.connectionID()}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) connectionID() string {
	if c.creds.ConnectionID == nil {
		return ""
	}
	return c.creds.ConnectionID()
}

// do executes a JSON request and decodes the response into out. Requests
// issued while the gate is held wait for its release.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	q := u.Query()
	q.Set("api_key", c.creds.APIKey)
	if id := c.connectionID(); id != "" {
		q.Set("connection_id", id)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stream-Auth-Type", "jwt")
	req.Header.Set("X-Client-Request-Id", uuid.NewString())
	if c.creds.Token != nil {
		req.Header.Set("Authorization", c.creds.Token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Package relay talks to the agent relay endpoint and the operational
// backend that owns workspace sessions.
package relay

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

	"github.com/user/wschat/internal/types"
)

// HTTPError is returned for any non-2xx reply.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Client implements types.Relay and types.SessionNotifier over HTTP.
type Client struct {
	endpoint   string
	backendURL string
	httpClient *http.Client
}

// New creates a client. endpoint is the full relay URL; backendURL is the
// operational backend base. Either may be empty to disable that side.
func New(endpoint, backendURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		backendURL: strings.TrimRight(strings.TrimSpace(backendURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Relay forwards a command to the agent relay. The reply body is ignored.
func (c *Client) Relay(ctx context.Context, req types.RelayRequest) error {
	if c.endpoint == "" {
		return fmt.Errorf("relay message: no relay endpoint configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling relay request: %w", err)
	}
	if err := c.post(ctx, c.endpoint, body); err != nil {
		return fmt.Errorf("relay message: %w", err)
	}
	return nil
}

// EndSession tells the backend the user left the workspace.
func (c *Client) EndSession(ctx context.Context, workspace types.WorkspaceID) error {
	if c.backendURL == "" {
		return nil
	}
	u := fmt.Sprintf("%s/api/workspace/%s/end-session", c.backendURL, url.PathEscape(string(workspace)))
	if err := c.post(ctx, u, []byte("{}")); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// NotifyJoin tells the backend a user joined a workspace.
func (c *Client) NotifyJoin(ctx context.Context, user types.UserID, workspace types.WorkspaceID) error {
	if c.backendURL == "" {
		return nil
	}
	q := url.Values{}
	q.Set("user_id", string(user))
	q.Set("workspace_id", string(workspace))
	u := c.backendURL + "/joinWorkspace?" + q.Encode()
	if err := c.post(ctx, u, nil); err != nil {
		return fmt.Errorf("notify join: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, u string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

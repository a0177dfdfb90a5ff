// HTTP client for the clipsync API, used by the agent, the CLI and the TUI
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

const (
	defaultBaseURL = "http://localhost:3000"
	APIPrefix      = "/api/core/v1"
)

// Envelope wraps every API response. Exactly one of Data and Error is set.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *string         `json:"error"`
}

// UserInfo is the account returned by GET /users.
type UserInfo struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client talks to a clipsync server with either a device API key or a user session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	lastSeq    atomic.Int64
}

// NewClient creates a client for baseURL. token is an API key or session token and may be empty.
func NewClient(baseURL, token string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		token:      token,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the credential sent with each request.
func (c *Client) SetToken(token string) { c.token = token }

// LastSeq is the highest seq seen by [Client.Poll].
func (c *Client) LastSeq() int64 { return c.lastSeq.Load() }

// SetLastSeq seeds the poll cursor.
func (c *Client) SetLastSeq(seq int64) { c.lastSeq.Store(seq) }

// statusError maps an HTTP status to the sentinel the server started from.
func statusError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return shared.ErrInvalidInput
	case http.StatusUnauthorized:
		return shared.ErrUnauthorized
	case http.StatusForbidden:
		return shared.ErrForbidden
	case http.StatusNotFound:
		return shared.ErrNotFound
	case http.StatusConflict:
		return shared.ErrConflict
	case http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// do sends body as JSON to path and decodes the envelope's data into result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	fullURL := c.baseURL + APIPrefix + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("status %d: %w", resp.StatusCode, statusError(resp.StatusCode))
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			msg = *env.Error
		}
		return fmt.Errorf("%s (status %d): %w", msg, resp.StatusCode, statusError(resp.StatusCode))
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Me returns the account behind the client's credential.
func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	var resp struct {
		User UserInfo `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Sync pushes one item.
func (c *Client) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	var result SyncResult
	if err := c.do(ctx, http.MethodPost, "/clipboard/sync", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Poll fetches items from other devices after the client's last seq and advances it.
// wait > 0 asks the server to hold the request until something arrives.
func (c *Client) Poll(ctx context.Context, limit int, wait time.Duration) (*PollResult, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(c.LastSeq(), 10))
	query.Set("excludeDevice", "true")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if wait > 0 {
		query.Set("wait", strconv.Itoa(int(wait.Seconds())))
	}

	var result PollResult
	if err := c.do(ctx, http.MethodGet, "/clipboard/sync", query, nil, &result); err != nil {
		return nil, err
	}

	if result.LastSeq > c.LastSeq() {
		c.lastSeq.Store(result.LastSeq)
	}
	return &result, nil
}

// ListItems returns clipboard history after since, or the most recent items when since is zero.
func (c *Client) ListItems(ctx context.Context, since int64, limit int) ([]models.ClipboardItemView, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatInt(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []models.ClipboardItemView
	if err := c.do(ctx, http.MethodGet, "/clipboard", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/clipboard/"+url.PathEscape(id), nil, nil, nil)
}

// ClearItems deletes all clipboard history and returns how many items were removed.
func (c *Client) ClearItems(ctx context.Context) (int64, error) {
	var resp struct {
		DeletedCount int64 `json:"deletedCount"`
	}
	if err := c.do(ctx, http.MethodDelete, "/clipboard/clear", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

// CreateRegistration asks the server for a pending registration. Exactly one of prefix and token is used:
// a prefix mints a new token; a token adopts one the agent generated.
func (c *Client) CreateRegistration(ctx context.Context, prefix, token string) (string, error) {
	body := map[string]string{"prefix": prefix, "token": token}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/devices/registrations", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Register exchanges a registration token (or the client's session) for a device API key.
func (c *Client) Register(ctx context.Context, req RegistrationRequest) (*APIKeyResult, error) {
	var result APIKeyResult
	if err := c.do(ctx, http.MethodPost, "/devices/register", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteRegistration finishes registration of a device that already exists on the account.
func (c *Client) CompleteRegistration(ctx context.Context, token string) (*APIKeyResult, error) {
	query := url.Values{"token": {token}}

	var result APIKeyResult
	if err := c.do(ctx, http.MethodGet, "/devices/register", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

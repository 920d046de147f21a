package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 15 * time.Second

// Client is the HTTP client for the account backend. It is safe for
// concurrent use; the bearer and CSRF headers are the only mutable state and
// are mutex-guarded.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string

	mu     sync.RWMutex
	bearer string
	csrf   string
}

// New builds a Client for the given base URL. A nil httpClient selects a
// default with a 15 second timeout.
func New(baseURL string, httpClient *http.Client, userAgent string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: base URL required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: base, http: httpClient, userAgent: userAgent}, nil
}

// SetBearer replaces the Authorization header value used by subsequent
// requests. The session orchestrator calls it atomically with its own state
// mutation.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

// ClearBearer removes the Authorization header from subsequent requests.
func (c *Client) ClearBearer() {
	c.SetBearer("")
}

// Bearer returns the currently applied bearer token, "" when none is set.
func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

// endpoint joins path onto the base URL, keeping any path prefix the base
// carries, and attaches the query when one is given.
func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.mu.RLock()
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// post wraps do with the lazy CSRF handshake required by mutating endpoints.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) ensureCSRF(ctx context.Context) error {
	c.mu.RLock()
	have := c.csrf != ""
	c.mu.RUnlock()
	if have {
		return nil
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, pathCSRF, nil, nil, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.csrf = resp.Token
	c.mu.Unlock()
	return nil
}

// ABOUTME: HTTP client for the hosted PocketBase backend: records, realtime,
// ABOUTME: auth and files. Implements the dashboard gateway contract.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retry paces realtime reconnects.
	Retry  RetryConfig
	Logger *zap.Logger
}

// Client talks to PocketBase via its REST and realtime APIs as the signed-in
// user.
type Client struct {
	baseURL string
	hc      *http.Client
	stream  *http.Client
	retry   RetryConfig
	log     *zap.Logger

	mu    sync.RWMutex
	token string

	rtOnce sync.Once
	rt     *realtime
}

// New builds a client. The base URL is required.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("pocketbase url required")
	}
	to := cfg.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	retry := cfg.Retry
	if retry.InitialWait == 0 {
		retry = DefaultRetryConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		hc:      &http.Client{Timeout: to},
		stream:  &http.Client{},
		retry:   retry,
		log:     log,
	}, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken installs the auth token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current auth token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is a non-2xx PocketBase response.
type APIError struct {
	Status  int
	Message string
	Data    map[string]any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pocketbase: status %d", e.Status)
	}
	return fmt.Sprintf("pocketbase: %d %s", e.Status, e.Message)
}

// Unauthorized reports whether the server rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", tok)
	}
	return req, nil
}

// doJSON sends in as JSON and decodes the response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
		ct = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, ct)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var doc struct {
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &doc) == nil {
		apiErr.Message = doc.Message
		apiErr.Data = doc.Data
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// Close stops the realtime connection, if one is open.
func (c *Client) Close() error {
	c.mu.RLock()
	rt := c.rt
	c.mu.RUnlock()
	if rt != nil {
		rt.close()
	}
	return nil
}

func (c *Client) realtime() *realtime {
	c.rtOnce.Do(func() {
		rt := newRealtime(c)
		c.mu.Lock()
		c.rt = rt
		c.mu.Unlock()
	})
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rt
}

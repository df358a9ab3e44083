package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telnet2/wamux/pkg/types"
)

// TestClient talks JSON to a running wamux control API.
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// Decode performs the request and decodes a 2xx JSON body into v.
func (c *TestClient) Decode(ctx context.Context, method, path string, body, v any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, resp.String())
	}
	return resp.JSON(v)
}

// StartSession posts a descriptor to /api/sessions/start.
func (c *TestClient) StartSession(ctx context.Context, desc types.SessionDescriptor) (*types.ActiveSession, error) {
	var out struct {
		Status *types.ActiveSession `json:"status"`
	}
	if err := c.Decode(ctx, http.MethodPost, "/api/sessions/start", desc, &out); err != nil {
		return nil, err
	}
	return out.Status, nil
}

// ActiveSessions lists running sessions.
func (c *TestClient) ActiveSessions(ctx context.Context) ([]types.ActiveSession, error) {
	var out []types.ActiveSession
	err := c.Decode(ctx, http.MethodGet, "/api/sessions/active", nil, &out)
	return out, err
}

// SessionState returns the state of a running session, or "" if it is not running.
func (c *TestClient) SessionState(ctx context.Context, name string) (types.SessionState, error) {
	var out struct {
		Active *types.ActiveSession `json:"active"`
	}
	resp, err := c.Get(ctx, "/api/session/"+name+"/status")
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if err := resp.JSON(&out); err != nil {
		return "", err
	}
	if out.Active == nil {
		return "", nil
	}
	return out.Active.State, nil
}

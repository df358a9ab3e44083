package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBlobNotFound is returned when the blob store has no such file.
var ErrBlobNotFound = errors.New("blob not found")

// maxBlobSize caps downloads. Session stores are a few hundred kilobytes.
const maxBlobSize = 64 << 20

// BlobStore holds sealed backups.
type BlobStore interface {
	Put(ctx context.Context, fileID string, data []byte) error
	Get(ctx context.Context, fileID string) ([]byte, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// HTTPBlobStore stores blobs with PUT and GET on <base>/<fileID>.
type HTTPBlobStore struct {
	base   *url.URL
	client *http.Client
	// Token, when set, is sent as a bearer token.
	Token string
}

// NewHTTPBlobStore creates a store rooted at baseURL.
func NewHTTPBlobStore(baseURL string) (*HTTPBlobStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backup url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backup url: unsupported scheme %q", u.Scheme)
	}
	return &HTTPBlobStore{
		base:   u,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *HTTPBlobStore) url(fileID string) string {
	return s.base.JoinPath(fileID).String()
}

func (s *HTTPBlobStore) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return s.client.Do(req)
}

// Put uploads data.
func (s *HTTPBlobStore) Put(ctx context.Context, fileID string, data []byte) error {
	resp, err := s.do(ctx, http.MethodPut, s.url(fileID), data)
	if err != nil {
		return fmt.Errorf("upload %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upload %s: unexpected status %s", fileID, resp.Status)
	}
	return nil
}

// Get downloads a blob.
func (s *HTTPBlobStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, s.url(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, fileID)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download %s: unexpected status %s", fileID, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	if len(data) > maxBlobSize {
		return nil, fmt.Errorf("download %s: blob larger than %d bytes", fileID, maxBlobSize)
	}
	return data, nil
}

// Ping sends a HEAD request to the base URL. Any response below 500 counts
// as reachable.
func (s *HTTPBlobStore) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodHead, s.base.String()+"/", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backup store unhealthy: %s", resp.Status)
	}
	return nil
}

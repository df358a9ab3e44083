package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEEvent is one frame of /api/events. Data is the encoded bus event.
type SSEEvent struct {
	Type string
	Data json.RawMessage
}

// BusEvent is the JSON shape of an event mirrored from the bus.
type BusEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the frame into a BusEvent.
func (e SSEEvent) Decode() (*BusEvent, error) {
	var be BusEvent
	if err := json.Unmarshal(e.Data, &be); err != nil {
		return nil, err
	}
	return &be, nil
}

// SSEClient reads an event stream in the background.
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	eventsCh chan SSEEvent
	errCh    chan error
	cancel   context.CancelFunc
	body     io.ReadCloser
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		eventsCh:   make(chan SSEEvent, 100),
		errCh:      make(chan error, 1),
	}
}

// Connect opens the stream at path.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", ct)
	}

	c.body = resp.Body
	go c.readEvents(resp.Body)
	return nil
}

func (c *SSEClient) readEvents(body io.Reader) {
	defer close(c.eventsCh)

	reader := bufio.NewReader(body)
	var eventType string
	var data strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				select {
				case c.errCh <- err:
				default:
				}
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				select {
				case c.eventsCh <- SSEEvent{Type: eventType, Data: json.RawMessage(data.String())}:
				default:
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// WaitForEvent returns the next event of the given type.
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	return c.WaitFor(func(e SSEEvent) bool { return e.Type == eventType }, timeout)
}

// WaitFor returns the next event matching fn.
func (c *SSEClient) WaitFor(fn func(SSEEvent) bool, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.eventsCh:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			if fn(evt) {
				return &evt, nil
			}
		case err := <-c.errCh:
			return nil, err
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event")
		}
	}
}

// Close closes the stream.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrConnectionNotFound means the target gateway has no live connection with that id.
	ErrConnectionNotFound = errors.New("notify: connection not found")
	// ErrForbidden means the gateway refused the caller's address.
	ErrForbidden = errors.New("notify: caller not allowed")
)

// Client pushes out-of-band notifications to a gateway instance.
type Client struct {
	http *resty.Client
}

// NewClient targets the gateway at baseURL, e.g. http://127.0.0.1:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Send delivers data to the connection identified by connID.
func (c *Client) Send(ctx context.Context, connID string, data json.RawMessage) error {
	if connID == "" {
		return errors.New("notify: connection id is required")
	}
	if len(data) == 0 {
		return errors.New("notify: data is required")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"connection_id": connID, "data": data}).
		Post("/notification")
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrConnectionNotFound
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return fmt.Errorf("notify: unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
}

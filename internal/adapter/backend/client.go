// Package backend fetches emergency requests from the RescueCom cloud API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/go-resty/resty/v2"
)

// RequestsPath is the backend endpoint returning the JSON request array.
const RequestsPath = "/api/requests"

// Client reads the current request list from the backend.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL. Requests are not retried.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Fetch returns the raw payloads of GET /api/requests. Any 2xx status is
// accepted; other statuses and non-array bodies are errors.
func (c *Client) Fetch(ctx context.Context) ([]domain.RawEmergency, error) {
	resp, err := c.http.R().SetContext(ctx).Get(RequestsPath)
	if err != nil {
		return nil, fmt.Errorf("fetch requests: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch requests: unexpected status %d", resp.StatusCode())
	}

	var raws []domain.RawEmergency
	if err := json.Unmarshal(resp.Body(), &raws); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return raws, nil
}

// Package metadata proxies item metadata lookups to the external metadata
// service. Thin I/O wrapper, no caching.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves the upstream metadata document for one item. Any non-200
// upstream answer is an error; the caller maps it to 502.
func (c *Client) Fetch(ctx context.Context, itemID string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read metadata response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("metadata service returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

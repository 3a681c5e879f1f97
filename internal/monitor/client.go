// Package monitor renders a terminal dashboard of source health, polling a
// running memctxd over its HTTP API.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Big0290/memory-context-manager-v2/internal/registry"
)

// Client fetches dashboard data from a memctxd HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at baseURL, e.g.
// "http://localhost:9291".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Sources returns the daemon's per-source health snapshot.
func (c *Client) Sources(ctx context.Context) ([]registry.Info, error) {
	var infos []registry.Info
	if err := c.getJSON(ctx, "/v1/sources", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Health holds the daemon-level health summary.
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Healthy   int    `json:"healthy_sources"`
	Degraded  int    `json:"degraded_sources"`
	Unhealthy int    `json:"unhealthy_sources"`
}

// Healthz returns the daemon health summary.
func (c *Client) Healthz(ctx context.Context) (Health, error) {
	var h Health
	err := c.getJSON(ctx, "/healthz", &h)
	return h, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

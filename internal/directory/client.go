package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ssd-technologies/myst/internal/transport"
)

// Client is the directory-consuming side of the API in spec.md §6. It
// implements transport.Discoverer so the upload pipeline can depend on the
// interface rather than this concrete type.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client pointed at baseURL (e.g. "http://directory:8500").
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: transport.DirectoryTimeout}}
}

// Discover lists online candidate nodes with at least minSpace bytes free,
// capped at count (spec.md §4.5 step 6, §4.7 line 142, §6 line 242).
// count <= 0 or minSpace <= 0 disables the corresponding filter.
func (c *Client) Discover(ctx context.Context, count int, minSpace int64) ([]transport.Candidate, error) {
	q := url.Values{}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	if minSpace > 0 {
		q.Set("minSpace", strconv.FormatInt(minSpace, 10))
	}

	reqURL := c.BaseURL + "/nodes"
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: request nodes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: nodes returned %d", resp.StatusCode)
	}

	var body struct {
		Nodes []NodeInfo `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("directory: decode nodes: %w", err)
	}

	candidates := make([]transport.Candidate, len(body.Nodes))
	for i, n := range body.Nodes {
		candidates[i] = transport.Candidate{
			ID:          n.ID,
			Address:     n.Address,
			Port:        n.Port,
			Reliability: n.Reliability,
		}
	}
	return candidates, nil
}

// Register advertises this node to the directory.
func (c *Client) Register(ctx context.Context, n NodeInfo) error {
	return c.post(ctx, "/register", n)
}

// Heartbeat refreshes this node's presence.
func (c *Client) Heartbeat(ctx context.Context, nodeID string) error {
	return c.post(ctx, "/heartbeat/"+nodeID, nil)
}

// Unregister removes this node from the directory.
func (c *Client) Unregister(ctx context.Context, nodeID string) error {
	return c.post(ctx, "/unregister/"+nodeID, nil)
}

// RegisterFragment advertises a fragment placement, used by the storage
// node after a successful local write.
func (c *Client) RegisterFragment(ctx context.Context, rec FragmentRecord) error {
	return c.post(ctx, "/fragment/register", rec)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var reader bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: marshal body: %w", err)
		}
		reader = *bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &reader)
	if err != nil {
		return fmt.Errorf("directory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory: post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory: post %s returned %d", path, resp.StatusCode)
	}
	return nil
}

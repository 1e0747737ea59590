// Package transport implements node ranking and the fragment-store HTTP
// client used during upload/download (spec.md §4.7, §5). It separates
// candidate selection from the concrete wire client so the pipeline can be
// tested against an in-memory fake, mirroring how the teacher's
// internal/dht package keeps shard-distribution logic independent of its
// Transport's WebSocket plumbing.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

// Candidate is a storage node as returned by the directory, annotated with
// whatever latency/reliability information ranking has gathered so far.
type Candidate struct {
	ID          string
	Address     string
	Port        int
	Reliability float64
	LatencyMS   float64
}

// HostPort returns "address:port" for dialing.
func (c Candidate) HostPort() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// NormalizeReliability folds a directory-reported reliability value onto
// the [0,1] scale. spec.md §9 leaves the wire representation of reliability
// an open question; nodes observed to self-report on a 0-100 scale are
// treated as percentages (r >= 2 cannot be a already-normalized fraction).
func NormalizeReliability(r float64) float64 {
	if r >= 2 {
		return r / 100
	}
	if r < 0 {
		return 0
	}
	return r
}

// score ranks lower-is-better: latency penalized, reliability rewarded, a
// small epsilon avoids division by zero for an unrated node.
func score(c Candidate) float64 {
	const epsilon = 0.01
	rel := NormalizeReliability(c.Reliability)
	if rel < epsilon {
		rel = epsilon
	}
	return c.LatencyMS / rel
}

// RankByLatency pings every candidate concurrently via ping and returns them
// sorted best-first by latency/reliability. Candidates that fail to respond
// are placed last, in input order, with LatencyMS left at its prior value.
func RankByLatency(ctx context.Context, nodes []Candidate, ping func(Candidate) (time.Duration, error)) []Candidate {
	type result struct {
		idx int
		ok  bool
	}

	out := make([]Candidate, len(nodes))
	copy(out, nodes)
	results := make(chan result, len(nodes))

	for i := range out {
		go func(i int) {
			d, err := ping(out[i])
			if err != nil {
				results <- result{idx: i, ok: false}
				return
			}
			out[i].LatencyMS = float64(d.Milliseconds())
			results <- result{idx: i, ok: true}
		}(i)
	}

	reachable := make([]bool, len(out))
collect:
	for i := 0; i < len(out); i++ {
		select {
		case r := <-results:
			reachable[r.idx] = r.ok
		case <-ctx.Done():
			break collect
		}
	}

	var ranked, unreachable []Candidate
	for i, c := range out {
		if reachable[i] {
			ranked = append(ranked, c)
		} else {
			unreachable = append(unreachable, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) < score(ranked[j])
	})
	return append(ranked, unreachable...)
}

// Timeouts matching spec.md §5's explicit per-operation budgets.
const (
	PingTimeout      = 5 * time.Second
	StoreTimeout     = 30 * time.Second
	RetrieveTimeout  = 30 * time.Second
	DirectoryTimeout = 10 * time.Second
)

// StoreMetadata is the wire body's metadata object, spec.md §4.5 step 8.
type StoreMetadata struct {
	FileHash         string `json:"file_hash"`
	PartitionIndex   int    `json:"partition_index"`
	RedundancyIndex  int    `json:"redundancy_index"`
	DoubleEncrypted  bool   `json:"double_encrypted"`
	Timestamp        int64  `json:"timestamp"`
}

// StoreRequest is the wire body of POST /store.
type StoreRequest struct {
	FragmentID string        `json:"fragment_id"`
	Data       []byte        `json:"data"`
	Checksum   string        `json:"checksum"` // SHA-256 hex of Data, for the node to verify on receipt
	Metadata   StoreMetadata `json:"metadata"`
}

// StoreResponse is the wire body returned by POST /store.
type StoreResponse struct {
	FragmentID string `json:"fragment_id"`
	Checksum   string `json:"checksum"`
}

// RetrieveResponse is the wire body returned by GET /retrieve/{id}.
type RetrieveResponse struct {
	FragmentID string `json:"fragment_id"`
	Data       []byte `json:"data"`
	Checksum   string `json:"checksum"`
}

// Client is the HTTP fragment-store client used by the upload/download
// pipeline to talk to a storage node (spec.md §4.9/§6).
type Client struct {
	HTTPClient *http.Client
}

// NewClient returns a Client with the per-call context deadlines assumed to
// do the timeout work; HTTPClient itself carries no blanket timeout so
// per-operation contexts (Ping vs Store vs Retrieve) remain authoritative.
func NewClient() *Client {
	return &Client{HTTPClient: &http.Client{}}
}

// Store uploads a fragment to node. A non-2xx response or transport error is
// classified soft (mysterr.NodeUnreachable) so the pipeline can retry the
// next replica without advancing the shard.
func (c *Client) Store(ctx context.Context, node Candidate, req StoreRequest) (StoreResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, StoreTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return StoreResponse{}, fmt.Errorf("transport: marshal store request: %w", err)
	}

	url := fmt.Sprintf("http://%s/store", node.HostPort())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return StoreResponse{}, fmt.Errorf("transport: build store request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return StoreResponse{}, mysterr.NodeUnreachable(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return StoreResponse{}, mysterr.NodeUnreachable(fmt.Errorf("store: node %s returned %d", node.ID, resp.StatusCode))
	}

	var out StoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StoreResponse{}, fmt.Errorf("transport: decode store response: %w", err)
	}
	return out, nil
}

// Retrieve fetches a fragment from node. A 404 is classified
// mysterr.FragmentNotFound (soft); any other failure is mysterr.NodeUnreachable
// (also soft) — both are retried per-replica by the download pipeline.
func (c *Client) Retrieve(ctx context.Context, node Candidate, fragmentID string) (RetrieveResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, RetrieveTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/retrieve/%s", node.HostPort(), fragmentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RetrieveResponse{}, fmt.Errorf("transport: build retrieve request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return RetrieveResponse{}, mysterr.NodeUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RetrieveResponse{}, mysterr.FragmentNotFound(fragmentID)
	}
	if !isSuccess(resp.StatusCode) {
		return RetrieveResponse{}, mysterr.NodeUnreachable(fmt.Errorf("retrieve: node %s returned %d", node.ID, resp.StatusCode))
	}

	var out RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RetrieveResponse{}, fmt.Errorf("transport: decode retrieve response: %w", err)
	}
	return out, nil
}

// Ping measures round-trip latency to node's /ping endpoint.
func (c *Client) Ping(ctx context.Context, node Candidate) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/ping", node.HostPort())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("transport: build ping request: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, mysterr.NodeUnreachable(err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if !isSuccess(resp.StatusCode) {
		return 0, mysterr.NodeUnreachable(fmt.Errorf("ping: node %s returned %d", node.ID, resp.StatusCode))
	}
	return elapsed, nil
}

// isSuccess reports whether status is any 2xx response. spec.md §4.7 treats
// success as "HTTP 2xx", and storage nodes are free to return 201 on a
// successful /store (internal/node/server.go does), so the client must not
// require exactly 200.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Discoverer lists directory-known candidate nodes with at least minSpace
// bytes free, capping the result at count (spec.md §4.5 step 6). count <= 0
// or minSpace <= 0 disables the corresponding filter.
type Discoverer interface {
	Discover(ctx context.Context, count int, minSpace int64) ([]Candidate, error)
}

// Pinger measures round-trip latency to a single candidate.
type Pinger interface {
	Ping(ctx context.Context, node Candidate) (time.Duration, error)
}

// Storer stores one fragment on one node.
type Storer interface {
	Store(ctx context.Context, node Candidate, req StoreRequest) (StoreResponse, error)
}

// Fetcher retrieves one fragment from one node.
type Fetcher interface {
	Retrieve(ctx context.Context, node Candidate, fragmentID string) (RetrieveResponse, error)
}

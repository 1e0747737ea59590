package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ssd-technologies/myst/internal/mysterr"
	"github.com/ssd-technologies/myst/internal/transport"
)

// fakeCluster is an in-memory stand-in for a directory plus a set of
// storage nodes, implementing transport.Discoverer/Pinger/Storer/Fetcher so
// the pipeline can be exercised without any real network I/O.
type fakeCluster struct {
	mu       sync.Mutex
	nodes    []transport.Candidate
	data     map[string]map[string][]byte // nodeID -> fragmentID -> ciphertext
	downNode map[string]bool
	downFrag map[string]bool // "nodeID/fragmentID" forced miss
}

func newFakeCluster(n int) *fakeCluster {
	c := &fakeCluster{
		data:     make(map[string]map[string][]byte),
		downNode: make(map[string]bool),
		downFrag: make(map[string]bool),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("node-%d", i)
		c.nodes = append(c.nodes, transport.Candidate{
			ID:          id,
			Address:     "127.0.0.1",
			Port:        9000 + i,
			Reliability: 1,
		})
		c.data[id] = make(map[string][]byte)
	}
	return c
}

// Discover ignores minSpace: the fake cluster has no per-node capacity
// model (transport.Candidate carries none), so every configured node is
// always a candidate. count, if positive, caps the result the same way
// directory.Registry.NodesWithCapacity does.
func (c *fakeCluster) Discover(ctx context.Context, count int, minSpace int64) ([]transport.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Candidate, len(c.nodes))
	copy(out, c.nodes)
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	return out, nil
}

func (c *fakeCluster) Ping(ctx context.Context, node transport.Candidate) (time.Duration, error) {
	c.mu.Lock()
	down := c.downNode[node.ID]
	c.mu.Unlock()
	if down {
		return 0, mysterr.NodeUnreachable(fmt.Errorf("node %s down", node.ID))
	}
	return time.Millisecond, nil
}

func (c *fakeCluster) Store(ctx context.Context, node transport.Candidate, req transport.StoreRequest) (transport.StoreResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.downNode[node.ID] {
		return transport.StoreResponse{}, mysterr.NodeUnreachable(fmt.Errorf("node %s down", node.ID))
	}
	c.data[node.ID][req.FragmentID] = req.Data
	return transport.StoreResponse{FragmentID: req.FragmentID}, nil
}

func (c *fakeCluster) Retrieve(ctx context.Context, node transport.Candidate, fragmentID string) (transport.RetrieveResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.downNode[node.ID] || c.downFrag[node.ID+"/"+fragmentID] {
		return transport.RetrieveResponse{}, mysterr.NodeUnreachable(fmt.Errorf("node %s unreachable", node.ID))
	}
	data, ok := c.data[node.ID][fragmentID]
	if !ok {
		return transport.RetrieveResponse{}, mysterr.FragmentNotFound(fragmentID)
	}
	return transport.RetrieveResponse{FragmentID: fragmentID, Data: data}, nil
}

// tamper corrupts one byte of the fragment stored for (nodeID, fragmentID).
func (c *fakeCluster) tamper(nodeID, fragmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := c.data[nodeID][fragmentID]
	if len(data) > 0 {
		data[0] ^= 0xFF
	}
}

// dropFragment forces Retrieve for (nodeID, fragmentID) to miss.
func (c *fakeCluster) dropFragment(nodeID, fragmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downFrag[nodeID+"/"+fragmentID] = true
}

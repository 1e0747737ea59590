package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndHeartbeat(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&NodeInfo{ID: "n1", Address: "10.0.0.1", Port: 9001, MaxStorage: 1000})

	require.NoError(t, reg.Heartbeat("n1"))
	assert.Error(t, reg.Heartbeat("unknown"))

	nodes := reg.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
}

func TestUnregisterRemovesNode(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&NodeInfo{ID: "n1"})
	reg.Unregister("n1")
	assert.Empty(t, reg.Nodes())
}

func TestRegisterFragmentUpdatesUsedStorage(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&NodeInfo{ID: "n1", MaxStorage: 1000})

	require.NoError(t, reg.RegisterFragment(&FragmentRecord{FragmentID: "f1", NodeID: "n1", Size: 256}))

	stats := reg.Stats()
	assert.Equal(t, int64(256), stats.UsedStorage)
	assert.Equal(t, 1, stats.TotalFragments)

	err := reg.RegisterFragment(&FragmentRecord{FragmentID: "f2", NodeID: "unknown", Size: 10})
	assert.Error(t, err)
}

func TestPruneOfflineMarksStaleNodesOffline(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&NodeInfo{ID: "n1"})
	reg.nodes["n1"].LastSeen = time.Now().Add(-time.Hour)

	reg.PruneOffline(time.Minute)
	assert.Empty(t, reg.Nodes())
}

func TestStatsAggregatesAcrossNodes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&NodeInfo{ID: "n1", MaxStorage: 1000})
	reg.Register(&NodeInfo{ID: "n2", MaxStorage: 2000})

	stats := reg.Stats()
	assert.Equal(t, 2, stats.NodesOnline)
	assert.Equal(t, 2, stats.NodesTotal)
	assert.Equal(t, int64(3000), stats.TotalStorage)
}

package directory

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAgainstReferenceServer(t *testing.T) {
	reg := NewRegistry()
	srv := httptest.NewServer(NewServer(reg))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, NodeInfo{ID: "n1", Address: "127.0.0.1", Port: 9001, MaxStorage: 1000}))

	candidates, err := client.Discover(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "n1", candidates[0].ID)

	require.NoError(t, client.Heartbeat(ctx, "n1"))
	require.NoError(t, client.RegisterFragment(ctx, FragmentRecord{FragmentID: "f1", NodeID: "n1", Size: 128}))

	require.NoError(t, client.Unregister(ctx, "n1"))
	candidates, err = client.Discover(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestClientDiscoverFilters(t *testing.T) {
	reg := NewRegistry()
	srv := httptest.NewServer(NewServer(reg))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, NodeInfo{ID: "small", Address: "127.0.0.1", Port: 9001, MaxStorage: 100}))
	require.NoError(t, client.Register(ctx, NodeInfo{ID: "big", Address: "127.0.0.1", Port: 9002, MaxStorage: 10_000}))

	candidates, err := client.Discover(ctx, 0, 1_000)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "big", candidates[0].ID)

	candidates, err = client.Discover(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

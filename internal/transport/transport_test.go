package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

func TestNormalizeReliability(t *testing.T) {
	assert.InDelta(t, 0.95, NormalizeReliability(95), 0.0001)
	assert.InDelta(t, 0.95, NormalizeReliability(0.95), 0.0001)
	assert.Equal(t, 0.0, NormalizeReliability(-1))
}

func TestRankByLatencyOrdersReachableFirst(t *testing.T) {
	nodes := []Candidate{
		{ID: "slow", Reliability: 1},
		{ID: "fast", Reliability: 1},
		{ID: "down", Reliability: 1},
	}
	ping := func(c Candidate) (time.Duration, error) {
		switch c.ID {
		case "slow":
			return 200 * time.Millisecond, nil
		case "fast":
			return 10 * time.Millisecond, nil
		default:
			return 0, assert.AnError
		}
	}

	ranked := RankByLatency(context.Background(), nodes, ping)
	require.Len(t, ranked, 3)
	assert.Equal(t, "fast", ranked[0].ID)
	assert.Equal(t, "slow", ranked[1].ID)
	assert.Equal(t, "down", ranked[2].ID)
}

func TestClientStoreAndRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/store":
			var req StoreRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(StoreResponse{FragmentID: req.FragmentID, Checksum: "ok"})
		case r.Method == http.MethodGet && r.URL.Path == "/retrieve/frag-1":
			json.NewEncoder(w).Encode(RetrieveResponse{FragmentID: "frag-1", Data: []byte("hi"), Checksum: "ok"})
		case r.URL.Path == "/retrieve/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	node := candidateFromURL(t, srv.URL)
	c := NewClient()

	storeResp, err := c.Store(context.Background(), node, StoreRequest{FragmentID: "frag-1", Data: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, "frag-1", storeResp.FragmentID)

	retrieveResp, err := c.Retrieve(context.Background(), node, "frag-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), retrieveResp.Data)

	_, err = c.Retrieve(context.Background(), node, "missing")
	require.Error(t, err)
	assert.Equal(t, mysterr.KindFragmentNotFound, mysterr.KindOf(err))
}

func TestClientStoreAcceptsNon200Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req StoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(StoreResponse{FragmentID: req.FragmentID, Checksum: "ok"})
	}))
	defer srv.Close()

	node := candidateFromURL(t, srv.URL)
	c := NewClient()

	storeResp, err := c.Store(context.Background(), node, StoreRequest{FragmentID: "frag-1", Data: []byte("hi")})
	require.NoError(t, err, "a 201 Created response, as the real node.Server returns, must count as success")
	assert.Equal(t, "frag-1", storeResp.FragmentID)
}

func TestClientStoreMapsUnreachableNode(t *testing.T) {
	c := NewClient()
	node := Candidate{ID: "nowhere", Address: "127.0.0.1", Port: 1}
	_, err := c.Store(context.Background(), node, StoreRequest{FragmentID: "x"})
	require.Error(t, err)
	assert.Equal(t, mysterr.KindNodeUnreachable, mysterr.KindOf(err))
}

func candidateFromURL(t *testing.T, rawURL string) Candidate {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return Candidate{ID: "test-node", Address: u.Hostname(), Port: port, Reliability: 1}
}

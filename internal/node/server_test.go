package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/myst/internal/cryptoutil"
	"github.com/ssd-technologies/myst/internal/directory"
	"github.com/ssd-technologies/myst/internal/ratelimit"
)

func newTestServer(t *testing.T) (*Server, *Store) {
	t.Helper()
	store := openTestStore(t)
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	dataDir := t.TempDir()
	limiter := ratelimit.New(1000, time.Minute)
	s := NewServer(store, id, dataDir, 10<<20, limiter, nil)
	return s, store
}

func TestHandleStoreAndRetrieveRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	data := []byte("ciphertext-bytes")
	payload := storeRequest{
		FragmentID: "frag-1",
		Data:       data,
		Checksum:   cryptoutil.SHA256Hex(data),
		Metadata: storeMetadata{
			FileHash:       "filehash",
			PartitionIndex: 0,
			RedundancyIndex: 0,
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var storeResp storeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&storeResp))
	assert.Equal(t, "frag-1", storeResp.FragmentID)
	assert.Equal(t, cryptoutil.SHA256Hex(payload.Data), storeResp.Checksum)

	getResp, err := http.Get(srv.URL + "/retrieve/frag-1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var retrieveResp retrieveResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&retrieveResp))
	assert.Equal(t, payload.Data, retrieveResp.Data)
}

func TestHandleRetrieveUnknownFragmentReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/retrieve/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleStoreRejectsEmptyPayload(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStoreReportsFragmentToDirectory(t *testing.T) {
	reg := directory.NewRegistry()
	dirSrv := httptest.NewServer(directory.NewServer(reg))
	defer dirSrv.Close()

	store := openTestStore(t)
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)
	reg.Register(&directory.NodeInfo{ID: id.NodeID, Address: "127.0.0.1", Port: 9001, MaxStorage: 1 << 20})

	dirClient := directory.NewClient(dirSrv.URL)
	limiter := ratelimit.New(1000, time.Minute)
	s := NewServer(store, id, t.TempDir(), 10<<20, limiter, dirClient)
	srv := httptest.NewServer(s)
	defer srv.Close()

	data := []byte("ciphertext-bytes")
	payload := storeRequest{
		FragmentID: "frag-reported",
		Data:       data,
		Checksum:   cryptoutil.SHA256Hex(data),
		Metadata:   storeMetadata{FileHash: "filehash", PartitionIndex: 2},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, 1, reg.Stats().TotalFragments)
}

func TestHandleStoreSurvivesUnreachableDirectory(t *testing.T) {
	store := openTestStore(t)
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	dirClient := directory.NewClient("http://127.0.0.1:1")
	limiter := ratelimit.New(1000, time.Minute)
	s := NewServer(store, id, t.TempDir(), 10<<20, limiter, dirClient)
	srv := httptest.NewServer(s)
	defer srv.Close()

	data := []byte("ciphertext-bytes")
	payload := storeRequest{FragmentID: "frag-orphan", Data: data, Checksum: cryptoutil.SHA256Hex(data)}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHandleStoreRejectsChecksumMismatch(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	payload := storeRequest{FragmentID: "frag-bad", Data: []byte("ciphertext"), Checksum: "not-the-real-checksum"}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRetrieveDetectsOnDiskCorruption(t *testing.T) {
	s, store := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	payload := storeRequest{FragmentID: "frag-1", Data: []byte("original bytes")}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	frag, err := store.Get("frag-1")
	require.NoError(t, err)
	require.NoError(t, tamperFile(frag.Path))

	getResp, err := http.Get(srv.URL + "/retrieve/frag-1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, getResp.StatusCode)
}

func TestHandlePingAndHealth(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	pingResp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer pingResp.Body.Close()
	assert.Equal(t, http.StatusOK, pingResp.StatusCode)

	healthResp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}

func TestHandleStoreRateLimited(t *testing.T) {
	store := openTestStore(t)
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)
	limiter := ratelimit.New(1, time.Minute)
	s := NewServer(store, id, t.TempDir(), 10<<20, limiter, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	body, err := json.Marshal(storeRequest{FragmentID: "a", Data: []byte("x")})
	require.NoError(t, err)

	resp1, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp1.Body.Close()
	assert.Equal(t, http.StatusCreated, resp1.StatusCode)

	body2, err := json.Marshal(storeRequest{FragmentID: "b", Data: []byte("y")})
	require.NoError(t, err)
	resp2, err := http.Post(srv.URL+"/store", "application/json", bytes.NewReader(body2))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}

func tamperFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data[0] ^= 0xFF
	return os.WriteFile(path, data, 0o600)
}

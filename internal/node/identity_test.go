package node

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateIdentity(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first.NodeID)
	assert.Len(t, first.PublicKey, 32)

	second, err := LoadOrCreateIdentity(dir)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID, second.NodeID)
	assert.Equal(t, first.PublicKey, second.PublicKey)
	assert.Equal(t, first.PrivateKey, second.PrivateKey)
}

func TestSignAndVerifyRequestRoundTrip(t *testing.T) {
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	body := []byte(`{"hello":"world"}`)
	req := httptest.NewRequest(http.MethodPost, "/store", nil)
	id.SignRequest(req, body)

	assert.NoError(t, VerifySignedRequest(req, id.PublicKey, body))
}

func TestVerifyRequestRejectsTamperedBody(t *testing.T) {
	id, err := LoadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/store", nil)
	id.SignRequest(req, []byte("original"))

	assert.Error(t, VerifySignedRequest(req, id.PublicKey, []byte("tampered")))
}

func TestVerifyRequestRejectsMissingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/store", nil)
	assert.Error(t, VerifySignedRequest(req, nil, []byte("body")))
}

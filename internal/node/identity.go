package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// signatureTimestampWindow is the maximum age of a signed request before it
// is rejected, mirroring the teacher's agent.TimestampWindow.
const signatureTimestampWindow = 5 * time.Minute

// Identity is a storage node's persistent Ed25519 keypair, serialized to
// node_id.json in the node's data directory so the node keeps the same ID
// across restarts.
type Identity struct {
	NodeID     string            `json:"node_id"`
	PublicKey  ed25519.PublicKey `json:"-"`
	PrivateKey ed25519.PrivateKey `json:"-"`
}

type identityFile struct {
	NodeID     string `json:"node_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// LoadOrCreateIdentity reads node_id.json from dataDir, generating and
// persisting a fresh Ed25519 keypair if it does not exist yet.
func LoadOrCreateIdentity(dataDir string) (*Identity, error) {
	path := filepath.Join(dataDir, "node_id.json")

	raw, err := os.ReadFile(path)
	if err == nil {
		var f identityFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("node: parse node_id.json: %w", err)
		}
		pub, err := hex.DecodeString(f.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("node: decode public key: %w", err)
		}
		priv, err := hex.DecodeString(f.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("node: decode private key: %w", err)
		}
		return &Identity{NodeID: f.NodeID, PublicKey: pub, PrivateKey: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("node: read node_id.json: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("node: generate identity: %w", err)
	}
	id := &Identity{
		NodeID:     nodeIDFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}
	f := identityFile{
		NodeID:     id.NodeID,
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("node: marshal identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("node: write node_id.json: %w", err)
	}
	return id, nil
}

// nodeIDFromPublicKey derives a short node ID from the first 8 bytes of the
// public key, hex encoded.
func nodeIDFromPublicKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub[:8])
}

// SignRequest signs an outgoing request to the directory service with this
// node's identity: X-Node-ID, X-Node-Timestamp, X-Node-Signature headers
// covering method + path + timestamp + body.
func (id *Identity) SignRequest(req *http.Request, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Node-ID", id.NodeID)
	req.Header.Set("X-Node-Timestamp", ts)

	msg := req.Method + req.URL.Path + ts + string(body)
	sig := ed25519.Sign(id.PrivateKey, []byte(msg))
	req.Header.Set("X-Node-Signature", hex.EncodeToString(sig))
}

// VerifySignedRequest verifies the X-Node-* headers on an inbound request
// against the claimed public key, rejecting stale or malformed signatures.
func VerifySignedRequest(req *http.Request, pubKey ed25519.PublicKey, body []byte) error {
	tsStr := req.Header.Get("X-Node-Timestamp")
	sigHex := req.Header.Get("X-Node-Signature")
	if tsStr == "" || sigHex == "" {
		return fmt.Errorf("node: missing signature headers")
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("node: invalid timestamp: %w", err)
	}
	if diff := math.Abs(float64(time.Now().Unix() - ts)); diff > signatureTimestampWindow.Seconds() {
		return fmt.Errorf("node: timestamp drift %.0fs exceeds window", diff)
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("node: invalid signature hex: %w", err)
	}

	msg := req.Method + req.URL.Path + tsStr + string(body)
	if !ed25519.Verify(pubKey, []byte(msg), sig) {
		return fmt.Errorf("node: signature verification failed")
	}
	return nil
}

// Package manifest implements the Recovery Manifest (.myst) schema and
// codec (spec.md §4.8, §6) — the single artifact a client must retain to
// reconstruct a file. It is a typed port of the teacher's
// internal/dht/filetypes.go ShardManifest/ShardInfo shape, restructured
// into the spec's nested security.master_encryption /
// security.fragment_encryption / partitions[].fragments[] layout.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

// Version is the manifest schema version this implementation writes and
// the only major version it accepts on read.
const Version = "3.0"

// Manifest is the canonical .myst recovery manifest.
type Manifest struct {
	Version            string              `json:"version"`
	FileName           string              `json:"file_name"`
	FileHash           string              `json:"file_hash"`
	OriginalSize       int64               `json:"original_size"`
	Compressed         bool                `json:"compressed"`
	ReedSolomon        bool                `json:"reed_solomon"`
	ReedSolomonConfig  *ReedSolomonConfig  `json:"reed_solomon_config"`
	Timestamp          int64               `json:"timestamp"`
	Security           Security            `json:"security"`
	Partitions         []Partition         `json:"partitions"`
}

// ReedSolomonConfig records the erasure parameters used at upload time.
type ReedSolomonConfig struct {
	DataShards   int `json:"data_shards"`
	ParityShards int `json:"parity_shards"`
	TotalShards  int `json:"total_shards"`
}

// Security bundles the two AEAD layers' parameters.
type Security struct {
	DoubleEncryption    bool                `json:"double_encryption"`
	MasterEncryption    MasterEncryption    `json:"master_encryption"`
	FragmentEncryption  FragmentEncryption  `json:"fragment_encryption"`
}

// MasterEncryption describes layer 1 (whole-file AES-256-GCM).
type MasterEncryption struct {
	Algorithm         string `json:"algorithm"`
	Key               string `json:"key,omitempty"` // base64(32), null iff password-protected
	IV                string `json:"iv"`             // base64(12)
	Tag               string `json:"tag"`            // base64(16)
	Salt              string `json:"salt,omitempty"` // base64(32), set iff password-protected
	EncryptedHash     string `json:"encrypted_hash"`
	KeyDerivation     string `json:"key_derivation"` // "PBKDF2" | "RANDOM"
	PasswordProtected bool   `json:"password_protected"`
}

// FragmentEncryption describes layer 2 (per-fragment AES-256-GCM).
type FragmentEncryption struct {
	Algorithm          string `json:"algorithm"`
	UniqueKeysPerFragment bool `json:"unique_keys_per_fragment"`
	TotalUniqueKeys    int    `json:"total_unique_keys"`
}

// Partition describes one shard's worth of fragments.
type Partition struct {
	Index             int        `json:"index"`
	OriginalChecksum  string     `json:"original_checksum"` // SHA-256 of plaintext shard bytes
	Size              int        `json:"size"`
	Fragments         []Fragment `json:"fragments"`
}

// Fragment describes one encrypted, transmitted copy of a shard.
type Fragment struct {
	FragmentID      string     `json:"fragment_id"`
	RedundancyIndex int        `json:"redundancy_index"`
	NodeID          string     `json:"node_id"`
	NodeAddress     string     `json:"node_address"`
	Checksum        string     `json:"checksum"` // SHA-256 of ciphertext
	Encryption      Encryption `json:"encryption"`
}

// Encryption carries layer-2 key material for a single fragment.
type Encryption struct {
	Key       string `json:"key"`  // base64(32), raw key pre-PBKDF2
	IV        string `json:"iv"`   // base64(12)
	Tag       string `json:"tag"`  // base64(16)
	Salt      string `json:"salt"` // base64(16)
	Algorithm string `json:"algorithm"`
}

// PasswordProtected reports whether this manifest requires a password to
// open (exactly one of {Key, Salt} is set — see spec.md §3).
func (m *Manifest) PasswordProtected() bool {
	return m.Security.MasterEncryption.PasswordProtected
}

// TotalShards returns DataShards + ParityShards, or len(Partitions) when RS
// is disabled.
func (m *Manifest) TotalShards() int {
	if m.ReedSolomonConfig != nil {
		return m.ReedSolomonConfig.TotalShards
	}
	return len(m.Partitions)
}

// Save writes the manifest as pretty-printed (two-space indent) UTF-8 JSON
// to path.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a .myst manifest from path, rejecting any major
// version other than the one this implementation understands. Missing
// optional fields (salt, reed_solomon_config) are tolerated.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses manifest JSON from memory, applying the same version gate
// as Load.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, mysterr.UnsupportedManifest(fmt.Sprintf("invalid JSON: %v", err))
	}
	if majorVersion(m.Version) != majorVersion(Version) {
		return nil, mysterr.UnsupportedManifest(fmt.Sprintf("unsupported version %q", m.Version))
	}
	return &m, nil
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

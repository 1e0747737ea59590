package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

func sample() *Manifest {
	return &Manifest{
		Version:      Version,
		FileName:     "photo.png",
		FileHash:     "abc123",
		OriginalSize: 4096,
		Compressed:   true,
		ReedSolomon:  true,
		ReedSolomonConfig: &ReedSolomonConfig{
			DataShards:   4,
			ParityShards: 2,
			TotalShards:  6,
		},
		Timestamp: 1700000000,
		Security: Security{
			DoubleEncryption: true,
			MasterEncryption: MasterEncryption{
				Algorithm:         "AES-256-GCM",
				IV:                "AAAAAAAAAAAAAAAAAAAAAA==",
				Tag:               "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
				Salt:              "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
				EncryptedHash:     "def456",
				KeyDerivation:     "PBKDF2",
				PasswordProtected: true,
			},
			FragmentEncryption: FragmentEncryption{
				Algorithm:             "AES-256-GCM",
				UniqueKeysPerFragment: true,
				TotalUniqueKeys:       6,
			},
		},
		Partitions: []Partition{
			{
				Index:            0,
				OriginalChecksum: "shard0checksum",
				Size:             1024,
				Fragments: []Fragment{
					{
						FragmentID:      "frag-0-0",
						RedundancyIndex: 0,
						NodeID:          "node-a",
						NodeAddress:     "127.0.0.1:9001",
						Checksum:        "fragchecksum",
						Encryption: Encryption{
							Key:       "a2V5",
							IV:        "aXY=",
							Tag:       "dGFn",
							Salt:      "c2FsdA==",
							Algorithm: "AES-256-GCM",
						},
					},
				},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := sample()
	path := filepath.Join(t.TempDir(), "archive.myst")

	require.NoError(t, m.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, m, loaded)
}

func TestLoadToleratesMissingOptionalFields(t *testing.T) {
	raw := `{
		"version": "3.0",
		"file_name": "plain.txt",
		"file_hash": "hash",
		"original_size": 10,
		"compressed": false,
		"reed_solomon": false,
		"timestamp": 1700000000,
		"security": {
			"double_encryption": false,
			"master_encryption": {
				"algorithm": "AES-256-GCM",
				"key": "a2V5",
				"iv": "aXY=",
				"tag": "dGFn",
				"encrypted_hash": "hash",
				"key_derivation": "RANDOM",
				"password_protected": false
			},
			"fragment_encryption": {
				"algorithm": "AES-256-GCM",
				"unique_keys_per_fragment": true,
				"total_unique_keys": 1
			}
		},
		"partitions": []
	}`

	m, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, m.ReedSolomonConfig)
	assert.Empty(t, m.Security.MasterEncryption.Salt)
	assert.False(t, m.PasswordProtected())
}

func TestDecodeRejectsWrongMajorVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": "2.0", "partitions": []}`))
	require.Error(t, err)
	assert.Equal(t, mysterr.KindUnsupportedManifest, mysterr.KindOf(err))
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, mysterr.KindUnsupportedManifest, mysterr.KindOf(err))
}

func TestTotalShardsFallsBackToPartitionCount(t *testing.T) {
	m := sample()
	m.ReedSolomonConfig = nil
	m.Partitions = append(m.Partitions, Partition{Index: 1})
	assert.Equal(t, 2, m.TotalShards())
}

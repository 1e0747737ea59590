package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/ssd-technologies/myst/internal/compress"
	"github.com/ssd-technologies/myst/internal/cryptoutil"
	"github.com/ssd-technologies/myst/internal/gf256"
	"github.com/ssd-technologies/myst/internal/manifest"
	"github.com/ssd-technologies/myst/internal/mysterr"
	"github.com/ssd-technologies/myst/internal/partition"
	"github.com/ssd-technologies/myst/internal/transport"
)

// DownloadOptions configures Download.
type DownloadOptions struct {
	OutputPath     string
	MasterPassword string
}

// Download runs the full C6 pipeline against a parsed manifest and returns
// the recovered plaintext. If opts.OutputPath is non-empty the plaintext is
// also written there; no partial plaintext is ever written on failure.
func Download(ctx context.Context, m *manifest.Manifest, opts DownloadOptions, fetch transport.Fetcher) ([]byte, error) {
	// Step 2: password gate.
	if m.PasswordProtected() && opts.MasterPassword == "" {
		return nil, mysterr.PasswordRequired()
	}

	// Step 3+4: fetch and decrypt every partition concurrently.
	shardPlaintexts := make([][]byte, len(m.Partitions))
	var wg sync.WaitGroup
	for idx, p := range m.Partitions {
		wg.Add(1)
		go func(idx int, p manifest.Partition) {
			defer wg.Done()
			shardPlaintexts[idx] = fetchAndDecryptPartition(ctx, p, fetch)
		}(idx, p)
	}
	wg.Wait()

	// Step 5: reconstruct master ciphertext (possibly compressed).
	processed, err := reconstruct(m, shardPlaintexts)
	if err != nil {
		return nil, err
	}

	// Step 6: verify master ciphertext integrity.
	masterCT := processed
	if m.Compressed {
		masterCT, err = compress.Decompress(processed)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decompress: %w", err)
		}
	}
	// The Reed-Solomon path yields D*S bytes, zero padding included. The
	// master ciphertext (tag stored separately) is exactly as long as the
	// plaintext, so anything past OriginalSize is that padding.
	if int64(len(masterCT)) > m.OriginalSize {
		masterCT = masterCT[:m.OriginalSize]
	}
	if cryptoutil.SHA256Hex(masterCT) != m.Security.MasterEncryption.EncryptedHash {
		return nil, mysterr.IntegrityFailure("master_ciphertext")
	}

	// Step 8: derive master key and decrypt.
	masterKey, err := deriveDownloadMasterKey(m, opts.MasterPassword)
	if err != nil {
		return nil, err
	}
	masterIV, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.IV)
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode master iv: %w", err)
	}
	masterTag, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.Tag)
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode master tag: %w", err)
	}
	plaintext, err := cryptoutil.AEADDecrypt(masterKey, masterIV, masterTag, masterCT)
	if err != nil {
		if m.PasswordProtected() {
			return nil, mysterr.IncorrectPassword(err)
		}
		return nil, err
	}

	// Step 9: verify final plaintext hash.
	if cryptoutil.SHA256Hex(plaintext) != m.FileHash {
		return nil, mysterr.IntegrityFailure("final_hash")
	}

	// Step 10: write output.
	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, plaintext, 0o600); err != nil {
			return nil, fmt.Errorf("pipeline: write output %s: %w", opts.OutputPath, err)
		}
	}
	return plaintext, nil
}

func deriveDownloadMasterKey(m *manifest.Manifest, password string) ([]byte, error) {
	if m.PasswordProtected() {
		salt, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.Salt)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode master salt: %w", err)
		}
		return cryptoutil.DeriveMasterKey(password, salt), nil
	}
	key, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.Key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode master key: %w", err)
	}
	return key, nil
}

// fetchAndDecryptPartition implements steps 3-4 for one partition: try each
// fragment descriptor in order until one validates, then decrypt layer 2.
// Returns nil (missing) if every replica fails checksum/fetch/decrypt.
func fetchAndDecryptPartition(ctx context.Context, p manifest.Partition, fetch transport.Fetcher) []byte {
	for _, desc := range p.Fragments {
		node, err := candidateFromAddress(desc.NodeID, desc.NodeAddress)
		if err != nil {
			continue
		}
		resp, err := fetch.Retrieve(ctx, node, desc.FragmentID)
		if err != nil {
			continue
		}
		if cryptoutil.SHA256Hex(resp.Data) != desc.Checksum {
			continue
		}

		rawKey, err := base64.StdEncoding.DecodeString(desc.Encryption.Key)
		if err != nil {
			continue
		}
		iv, err := base64.StdEncoding.DecodeString(desc.Encryption.IV)
		if err != nil {
			continue
		}
		tag, err := base64.StdEncoding.DecodeString(desc.Encryption.Tag)
		if err != nil {
			continue
		}
		salt, err := base64.StdEncoding.DecodeString(desc.Encryption.Salt)
		if err != nil {
			continue
		}

		effKey := cryptoutil.DeriveFragmentKey(rawKey, salt)
		plaintext, err := cryptoutil.AEADDecrypt(effKey, iv, tag, resp.Data)
		if err != nil {
			continue
		}
		if cryptoutil.SHA256Hex(plaintext) != p.OriginalChecksum {
			continue
		}
		return plaintext
	}
	return nil
}

func candidateFromAddress(nodeID, address string) (transport.Candidate, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return transport.Candidate{}, fmt.Errorf("pipeline: split address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return transport.Candidate{}, fmt.Errorf("pipeline: parse port %q: %w", portStr, err)
	}
	return transport.Candidate{ID: nodeID, Address: host, Port: port}, nil
}

// reconstruct implements step 5. shardPlaintexts holds one recovered shard
// per partition, in index order, with nil entries marking a partition that
// could not be fetched/decrypted/verified.
func reconstruct(m *manifest.Manifest, shardPlaintexts [][]byte) ([]byte, error) {
	if !m.ReedSolomon {
		for _, s := range shardPlaintexts {
			if s == nil {
				return nil, mysterr.AuthenticationFailed(fmt.Errorf("partition missing and no redundancy layer to recover it"))
			}
		}
		return partition.Merge(shardPlaintexts), nil
	}

	cfg := m.ReedSolomonConfig
	if cfg == nil {
		return nil, mysterr.UnsupportedManifest("reed_solomon set but reed_solomon_config missing")
	}
	shardSize := 0
	for _, p := range m.Partitions {
		if p.Size > shardSize {
			shardSize = p.Size
		}
	}

	codec, err := gf256.NewCodec(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("pipeline: new codec: %w", err)
	}

	processed, err := codec.Decode(shardPlaintexts, shardSize)
	if err == nil {
		return processed, nil
	}

	// Fallback: if the first D data shards all happen to be present,
	// concatenate them directly rather than failing outright.
	if allPresent(shardPlaintexts[:cfg.DataShards]) {
		return partition.Merge(shardPlaintexts[:cfg.DataShards]), nil
	}
	return nil, err
}

func allPresent(shards [][]byte) bool {
	for _, s := range shards {
		if s == nil {
			return false
		}
	}
	return true
}

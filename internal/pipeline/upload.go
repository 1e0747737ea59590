// Package pipeline implements the upload and download orchestration of
// spec.md §4.5/§4.6 (C5/C6): it ties together gf256, cryptoutil, compress,
// partition, manifest, and transport into the two end-to-end operations a
// myst client performs. The step numbering below mirrors the teacher's
// internal/dht.DistributeFile/ReconstructFile — a small, numbered sequence
// of named steps each returning a wrapped error — generalized from a DHT
// shard store to a ranked set of HTTP storage nodes.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ssd-technologies/myst/internal/compress"
	"github.com/ssd-technologies/myst/internal/cryptoutil"
	"github.com/ssd-technologies/myst/internal/gf256"
	"github.com/ssd-technologies/myst/internal/manifest"
	"github.com/ssd-technologies/myst/internal/mysterr"
	"github.com/ssd-technologies/myst/internal/partition"
	"github.com/ssd-technologies/myst/internal/transport"
)

// DefaultPartitions and DefaultRedundancy match spec.md §4.5's stated
// defaults.
const (
	DefaultPartitions = 10
	DefaultRedundancy = 3
)

// maxRetriesMultiplier times the redundancy factor bounds the
// retry-next-node loop in step 8 for each redundancy slot.
const maxRetriesMultiplier = 2

// UploadOptions configures Upload. Zero value Partitions/Redundancy fall
// back to DefaultPartitions/DefaultRedundancy; Compression/ReedSolomon
// default true in NewUploadOptions.
type UploadOptions struct {
	Partitions     int
	Redundancy     int
	Compression    bool
	ReedSolomon    bool
	MasterPassword string
}

// NewUploadOptions returns spec.md §4.5's stated defaults.
func NewUploadOptions() UploadOptions {
	return UploadOptions{
		Partitions:  DefaultPartitions,
		Redundancy:  DefaultRedundancy,
		Compression: true,
		ReedSolomon: true,
	}
}

func (o UploadOptions) normalized() UploadOptions {
	if o.Partitions <= 0 {
		o.Partitions = DefaultPartitions
	}
	if o.Redundancy <= 0 {
		o.Redundancy = DefaultRedundancy
	}
	return o
}

// Upload runs the full C5 pipeline against the file at path and returns the
// resulting manifest. The manifest is not written to disk here; callers
// typically call Save(path + ".myst") themselves (see cmd/myst).
func Upload(ctx context.Context, path string, opts UploadOptions, disc transport.Discoverer, pinger transport.Pinger, store transport.Storer) (*manifest.Manifest, error) {
	opts = opts.normalized()

	// Step 1: read file, compute file_hash.
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	fileHash := cryptoutil.SHA256Hex(plaintext)

	// Step 2: derive master key.
	masterKey, masterSalt, keyDerivation, err := deriveUploadMasterKey(opts.MasterPassword)
	if err != nil {
		return nil, err
	}

	// Step 3: master-encrypt the whole plaintext.
	masterCT, masterIV, masterTag, err := cryptoutil.AEADEncrypt(masterKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("pipeline: master encrypt: %w", err)
	}
	masterEncryptedHash := cryptoutil.SHA256Hex(masterCT)

	// Step 4: optional compression of master ciphertext.
	processed := masterCT
	if opts.Compression {
		processed, err = compress.Compress(masterCT)
		if err != nil {
			return nil, fmt.Errorf("pipeline: compress: %w", err)
		}
	}

	// Step 5: erasure layer.
	shardPlaintexts, dataShards, parityShards, err := eraseCode(processed, opts)
	if err != nil {
		return nil, err
	}
	totalShards := dataShards + parityShards

	// Step 6: discover nodes with enough free space for the largest shard.
	need := totalShards * opts.Redundancy
	minSpace := int64(0)
	for _, shard := range shardPlaintexts {
		if int64(len(shard)) > minSpace {
			minSpace = int64(len(shard))
		}
	}
	candidates, err := disc.Discover(ctx, need, minSpace)
	if err != nil {
		return nil, fmt.Errorf("pipeline: discover nodes: %w", err)
	}
	if len(candidates) < need {
		return nil, mysterr.InsufficientNodes(len(candidates), need)
	}

	// Step 7: latency rank.
	ranked := transport.RankByLatency(ctx, candidates, func(c transport.Candidate) (time.Duration, error) {
		return pinger.Ping(ctx, c)
	})

	// Step 8: distribute.
	partitions, err := distribute(ctx, shardPlaintexts, opts.Redundancy, ranked, store, fileHash)
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		Version:      manifest.Version,
		FileName:     filepath.Base(path),
		FileHash:     fileHash,
		OriginalSize: int64(len(plaintext)),
		Compressed:   opts.Compression,
		ReedSolomon:  opts.ReedSolomon,
		Timestamp:    time.Now().Unix(),
		Security: manifest.Security{
			DoubleEncryption: true,
			MasterEncryption: manifest.MasterEncryption{
				Algorithm:         "AES-256-GCM",
				IV:                base64.StdEncoding.EncodeToString(masterIV),
				Tag:               base64.StdEncoding.EncodeToString(masterTag),
				EncryptedHash:     masterEncryptedHash,
				KeyDerivation:     keyDerivation,
				PasswordProtected: opts.MasterPassword != "",
			},
			FragmentEncryption: manifest.FragmentEncryption{
				Algorithm:             "AES-256-GCM",
				UniqueKeysPerFragment: true,
				TotalUniqueKeys:       totalShards * opts.Redundancy,
			},
		},
		Partitions: partitions,
	}
	if opts.MasterPassword != "" {
		m.Security.MasterEncryption.Salt = base64.StdEncoding.EncodeToString(masterSalt)
	} else {
		key := base64.StdEncoding.EncodeToString(masterKey)
		m.Security.MasterEncryption.Key = key
	}
	if opts.ReedSolomon {
		m.ReedSolomonConfig = &manifest.ReedSolomonConfig{
			DataShards:   dataShards,
			ParityShards: parityShards,
			TotalShards:  totalShards,
		}
	}

	return m, nil
}

func deriveUploadMasterKey(password string) (key, salt []byte, derivation string, err error) {
	if password != "" {
		salt, err = cryptoutil.GenerateMasterSalt()
		if err != nil {
			return nil, nil, "", fmt.Errorf("pipeline: generate master salt: %w", err)
		}
		return cryptoutil.DeriveMasterKey(password, salt), salt, "PBKDF2", nil
	}
	key, err = cryptoutil.GenerateRandom(cryptoutil.KeySize)
	if err != nil {
		return nil, nil, "", fmt.Errorf("pipeline: generate master key: %w", err)
	}
	return key, nil, "RANDOM", nil
}

// eraseCode implements step 5: P = ceil(D*0.4) parity shards via gf256 when
// reed_solomon is set, or a plain ceiling-chunk split with P=0 otherwise.
func eraseCode(processed []byte, opts UploadOptions) (shards [][]byte, dataShards, parityShards int, err error) {
	dataShards = opts.Partitions
	if !opts.ReedSolomon {
		return partition.Split(processed, dataShards), dataShards, 0, nil
	}

	parityShards = int(math.Ceil(float64(dataShards) * 0.4))
	codec, err := gf256.NewCodec(dataShards, parityShards)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("pipeline: new codec: %w", err)
	}
	shards, _, err = codec.Encode(processed)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("pipeline: rs encode: %w", err)
	}
	return shards, dataShards, parityShards, nil
}

// distribute implements step 8: round-robin node assignment, per-fragment
// key material, and the retry-next-node-without-advancing-shard rule.
func distribute(ctx context.Context, shards [][]byte, redundancy int, ranked []transport.Candidate, store transport.Storer, fileHash string) ([]manifest.Partition, error) {
	if len(ranked) == 0 {
		return nil, mysterr.InsufficientNodes(0, redundancy)
	}

	partitions := make([]manifest.Partition, len(shards))
	nodeCursor := 0
	maxRetries := maxRetriesMultiplier * redundancy

	for i, shard := range shards {
		originalChecksum := cryptoutil.SHA256Hex(shard)
		partitions[i] = manifest.Partition{
			Index:            i,
			OriginalChecksum: originalChecksum,
			Size:             len(shard),
		}

		for r := 0; r < redundancy; r++ {
			frag, node, attempts, err := storeWithRetry(ctx, shard, i, r, ranked, &nodeCursor, store, fileHash, maxRetries)
			if err != nil {
				log.Printf("pipeline: shard %d redundancy slot %d exhausted after %d attempts", i, r, attempts)
				return nil, mysterr.DistributionFailed(i, err)
			}
			frag.NodeAddress = node.HostPort()
			frag.NodeID = node.ID
			partitions[i].Fragments = append(partitions[i].Fragments, frag)
		}
	}
	return partitions, nil
}

// storeWithRetry tries nodes in round-robin order until one accepts the
// fragment or maxRetries is exhausted. It never advances i/r on failure,
// per spec.md §4.5 step 8.
func storeWithRetry(ctx context.Context, shard []byte, i, r int, ranked []transport.Candidate, nodeCursor *int, store transport.Storer, fileHash string, maxRetries int) (manifest.Fragment, transport.Candidate, int, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		node := ranked[*nodeCursor%len(ranked)]
		*nodeCursor++

		rawKey, err := cryptoutil.GenerateRandom(cryptoutil.KeySize)
		if err != nil {
			return manifest.Fragment{}, transport.Candidate{}, attempt, fmt.Errorf("generate raw key: %w", err)
		}
		iv, err := cryptoutil.GenerateRandom(cryptoutil.NonceSize)
		if err != nil {
			return manifest.Fragment{}, transport.Candidate{}, attempt, fmt.Errorf("generate iv: %w", err)
		}
		salt, err := cryptoutil.GenerateFragmentSalt()
		if err != nil {
			return manifest.Fragment{}, transport.Candidate{}, attempt, fmt.Errorf("generate salt: %w", err)
		}
		effKey := cryptoutil.DeriveFragmentKey(rawKey, salt)

		ct, ivOut, tag, err := cryptoutil.AEADEncryptWithIV(effKey, shard, iv)
		if err != nil {
			return manifest.Fragment{}, transport.Candidate{}, attempt, fmt.Errorf("fragment encrypt: %w", err)
		}

		fragmentID := computeFragmentID(ct, rawKey, iv, i, r)
		checksum := cryptoutil.SHA256Hex(ct)

		resp, err := store.Store(ctx, node, transport.StoreRequest{
			FragmentID: fragmentID,
			Data:       ct,
			Checksum:   checksum,
			Metadata: transport.StoreMetadata{
				FileHash:        fileHash,
				PartitionIndex:  i,
				RedundancyIndex: r,
				DoubleEncrypted: true,
				Timestamp:       time.Now().Unix(),
			},
		})
		if err != nil {
			lastErr = err
			if mysterr.KindOf(err).IsSoft() {
				continue
			}
			return manifest.Fragment{}, transport.Candidate{}, attempt, err
		}

		frag := manifest.Fragment{
			FragmentID:      resp.FragmentID,
			RedundancyIndex: r,
			Checksum:        checksum,
			Encryption: manifest.Encryption{
				Key:       base64.StdEncoding.EncodeToString(rawKey),
				IV:        base64.StdEncoding.EncodeToString(ivOut),
				Tag:       base64.StdEncoding.EncodeToString(tag),
				Salt:      base64.StdEncoding.EncodeToString(salt),
				Algorithm: "AES-256-GCM",
			},
		}
		return frag, node, attempt + 1, nil
	}
	return manifest.Fragment{}, transport.Candidate{}, maxRetries, lastErr
}

// computeFragmentID matches spec.md §4.5 step 8's formula:
// SHA-256(ct || raw_key || iv || ascii(f"{i}-{r}-{wallclock_ms}")).
func computeFragmentID(ct, rawKey, iv []byte, i, r int) string {
	suffix := fmt.Sprintf("%d-%d-%d", i, r, time.Now().UnixMilli())
	buf := make([]byte, 0, len(ct)+len(rawKey)+len(iv)+len(suffix))
	buf = append(buf, ct...)
	buf = append(buf, rawKey...)
	buf = append(buf, iv...)
	buf = append(buf, suffix...)
	return cryptoutil.SHA256Hex(buf)
}

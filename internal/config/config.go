// Package config replaces the scattered os.Getenv calls in the teacher's
// cmd/nocturne/main.go and cmd/nocturne-node/main.go with a single typed
// Config struct assembled once at startup and threaded explicitly into
// constructors — no package-level singletons.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// NodeConfig configures a myst-node storage daemon.
type NodeConfig struct {
	Port            string
	DataDir         string
	DirectoryURL    string
	MaxStorageBytes int64
	RateLimitBytes  int64
	RateLimitWindow time.Duration
	HeartbeatEvery  time.Duration
	SweepEvery      time.Duration
	FreeSpaceLogEvery time.Duration
}

// NodeConfigFromEnv builds a NodeConfig from environment variables, falling
// back to the defaults the teacher hard-coded inline.
func NodeConfigFromEnv() (NodeConfig, error) {
	cfg := NodeConfig{
		Port:              getEnv("MYST_NODE_PORT", "8090"),
		DataDir:           getEnv("MYST_NODE_DATA_DIR", "data"),
		DirectoryURL:      getEnv("MYST_DIRECTORY_URL", "http://localhost:8500"),
		MaxStorageBytes:   10 << 30, // 10 GiB
		RateLimitBytes:    256 << 20, // 256 MiB of fragment data per IP per window
		RateLimitWindow:   time.Minute,
		HeartbeatEvery:    30 * time.Second,
		SweepEvery:        time.Hour,
		FreeSpaceLogEvery: 5 * time.Minute,
	}

	if v := os.Getenv("MYST_NODE_MAX_STORAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return NodeConfig{}, fmt.Errorf("config: MYST_NODE_MAX_STORAGE_BYTES: %w", err)
		}
		cfg.MaxStorageBytes = n
	}
	return cfg, nil
}

// DirectoryConfig configures the reference myst-directory service.
type DirectoryConfig struct {
	Port            string
	OfflineTimeout  time.Duration
	PruneEvery      time.Duration
}

// DirectoryConfigFromEnv builds a DirectoryConfig from environment variables.
func DirectoryConfigFromEnv() DirectoryConfig {
	return DirectoryConfig{
		Port:           getEnv("MYST_DIRECTORY_PORT", "8500"),
		OfflineTimeout: 90 * time.Second,
		PruneEvery:     30 * time.Second,
	}
}

// ClientConfig configures the myst CLI.
type ClientConfig struct {
	DirectoryURL string
}

// ClientConfigFromEnv builds a ClientConfig from environment variables.
func ClientConfigFromEnv() ClientConfig {
	return ClientConfig{
		DirectoryURL: getEnv("MYST_DIRECTORY_URL", "http://localhost:8500"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

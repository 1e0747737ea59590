// cmd/myst-node runs a storage-node daemon: it serves fragment storage over
// HTTP (/store, /retrieve/{id}, /ping, /health, /events) and keeps itself
// registered with a directory service via periodic heartbeats. Structure
// follows the teacher's cmd/nocturne-node/main.go (keypair-on-disk, env/flag
// configuration, signal-driven graceful shutdown) but as a long-running
// daemon rather than a PID-file-managed background process, matching
// spec.md §4.9's always-on storage-node model.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ssd-technologies/myst/internal/config"
	"github.com/ssd-technologies/myst/internal/directory"
	"github.com/ssd-technologies/myst/internal/node"
	"github.com/ssd-technologies/myst/internal/ratelimit"
)

func main() {
	cfg, err := config.NodeConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	identity, err := node.LoadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}

	store, err := node.OpenStore(filepath.Join(cfg.DataDir, "fragments.db"))
	if err != nil {
		log.Fatalf("open fragment store: %v", err)
	}
	defer store.Close()

	dirClient := directory.NewClient(cfg.DirectoryURL)

	limiter := ratelimit.New(cfg.RateLimitBytes, cfg.RateLimitWindow)
	srv := node.NewServer(store, identity, cfg.DataDir, cfg.MaxStorageBytes, limiter, dirClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("invalid port %q: %v", cfg.Port, err)
	}

	workers := node.NewWorkers(store, identity, dirClient, "127.0.0.1", port, cfg.MaxStorageBytes,
		cfg.HeartbeatEvery, cfg.SweepEvery, cfg.FreeSpaceLogEvery)
	workers.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		dirClient.Unregister(context.Background(), identity.NodeID)
		cancel()
		os.Exit(0)
	}()

	fmt.Printf("myst-node %s listening on http://localhost:%s\n", identity.NodeID, cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, srv))
}

// cmd/myst-directory runs the reference directory service: an in-memory
// registry of online storage nodes, exposed over HTTP for discovery,
// registration, and heartbeats. spec.md §1 scopes the directory service out
// of this repository proper; this binary exists so the system runs
// end-to-end without a separately deployed implementation.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssd-technologies/myst/internal/config"
	"github.com/ssd-technologies/myst/internal/directory"
)

func main() {
	cfg := config.DirectoryConfigFromEnv()

	reg := directory.NewRegistry()
	srv := directory.NewServer(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runPruneLoop(ctx, reg, cfg.OfflineTimeout, cfg.PruneEvery)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	fmt.Printf("myst-directory listening on http://localhost:%s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, srv))
}

func runPruneLoop(ctx context.Context, reg *directory.Registry, offlineTimeout, every time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
			reg.PruneOffline(offlineTimeout)
		}
	}
}

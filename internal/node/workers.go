package node

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ssd-technologies/myst/internal/cryptoutil"
	"github.com/ssd-technologies/myst/internal/directory"
)

// Workers runs the node's background loops: directory heartbeat, hourly
// integrity sweep, and periodic free-space logging. One ticker-based
// goroutine per concern, grounded on the teacher's Server.StartWorkers.
type Workers struct {
	store       *Store
	identity    *Identity
	dirClient   *directory.Client
	address     string
	port        int
	maxBytes    int64
	heartbeat   time.Duration
	sweep       time.Duration
	freeSpaceLog time.Duration
}

// NewWorkers builds a Workers set for the given node.
func NewWorkers(store *Store, identity *Identity, dirClient *directory.Client, address string, port int, maxBytes int64, heartbeat, sweep, freeSpaceLog time.Duration) *Workers {
	return &Workers{
		store:        store,
		identity:     identity,
		dirClient:    dirClient,
		address:      address,
		port:         port,
		maxBytes:     maxBytes,
		heartbeat:    heartbeat,
		sweep:        sweep,
		freeSpaceLog: freeSpaceLog,
	}
}

// Start launches all three loops. ctx cancellation stops them.
func (w *Workers) Start(ctx context.Context) {
	go w.runHeartbeat(ctx)
	go w.runIntegritySweep(ctx)
	go w.runFreeSpaceLog(ctx)
}

func (w *Workers) runHeartbeat(ctx context.Context) {
	w.sendHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.heartbeat):
			w.sendHeartbeat(ctx)
		}
	}
}

func (w *Workers) sendHeartbeat(ctx context.Context) {
	used, err := w.store.UsedSpace()
	if err != nil {
		log.Printf("[worker] heartbeat: used space: %v", err)
		return
	}

	info := directory.NodeInfo{
		ID:          w.identity.NodeID,
		Address:     w.address,
		Port:        w.port,
		Reliability: 1.0,
		MaxStorage:  w.maxBytes,
		UsedStorage: used,
	}
	if err := w.dirClient.Register(ctx, info); err != nil {
		log.Printf("[worker] heartbeat: register: %v", err)
		return
	}
	if err := w.dirClient.Heartbeat(ctx, w.identity.NodeID); err != nil {
		log.Printf("[worker] heartbeat: %v", err)
	}
}

// runIntegritySweep re-hashes every stored fragment hourly (and once at
// startup) so corruption is discovered before a client asks for the
// fragment, rather than only on retrieval.
func (w *Workers) runIntegritySweep(ctx context.Context) {
	w.sweepOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.sweep):
			w.sweepOnce()
		}
	}
}

// sweepOnce re-hashes every recorded fragment once and returns how many were
// unreadable or failed their checksum.
func (w *Workers) sweepOnce() int {
	frags, err := w.store.All()
	if err != nil {
		log.Printf("[worker] integrity sweep: list fragments: %v", err)
		return 0
	}

	corrupted := 0
	for _, f := range frags {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.Printf("[worker] integrity sweep: fragment %s unreadable: %v", f.FragmentID, err)
			corrupted++
			continue
		}
		if cryptoutil.SHA256Hex(data) != f.Checksum {
			log.Printf("[worker] integrity sweep: fragment %s failed checksum", f.FragmentID)
			corrupted++
		}
	}
	if corrupted > 0 {
		log.Printf("[worker] integrity sweep: %d/%d fragments corrupted", corrupted, len(frags))
	}
	return corrupted
}

func (w *Workers) runFreeSpaceLog(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.freeSpaceLog):
			used, err := w.store.UsedSpace()
			if err != nil {
				log.Printf("[worker] free space log: %v", err)
				continue
			}
			free := w.maxBytes - used
			log.Printf("[worker] storage: %d/%d bytes used, %d free", used, w.maxBytes, free)
		}
	}
}

package pipeline

import (
	"context"
	"sync"

	"github.com/ssd-technologies/myst/internal/manifest"
	"github.com/ssd-technologies/myst/internal/transport"
)

// PartitionAvailability reports how many of one partition's fragment
// replicas answered a ping.
type PartitionAvailability struct {
	Index               int
	ReachableFragments   int
	TotalFragments       int
}

// AvailabilityReport is the result of VerifyAvailability: a reachability
// probe over every partition's fragments, without fetching or decrypting
// any fragment data.
type AvailabilityReport struct {
	Recoverable         bool
	RequiredPartitions  int
	ReachablePartitions int
	TotalPartitions     int
	Partitions          []PartitionAvailability
}

// VerifyAvailability implements the C7 availability probe of spec.md
// §4.7: for each partition, ping every fragment's node; the partition
// counts as reachable if at least one fragment's node answers. The file
// is reachable if reachable partitions >= D (the data-shard count, or
// every partition when Reed-Solomon is disabled). Unlike Download, this
// never fetches fragment bytes or touches the AEAD layers, so it needs no
// master password even for a password-protected manifest.
func VerifyAvailability(ctx context.Context, m *manifest.Manifest, pinger transport.Pinger) AvailabilityReport {
	required := len(m.Partitions)
	if m.ReedSolomonConfig != nil {
		required = m.ReedSolomonConfig.DataShards
	}

	report := AvailabilityReport{
		RequiredPartitions: required,
		TotalPartitions:    len(m.Partitions),
		Partitions:         make([]PartitionAvailability, len(m.Partitions)),
	}

	var wg sync.WaitGroup
	for idx, p := range m.Partitions {
		wg.Add(1)
		go func(idx int, p manifest.Partition) {
			defer wg.Done()
			report.Partitions[idx] = probePartition(ctx, idx, p, pinger)
		}(idx, p)
	}
	wg.Wait()

	for _, pa := range report.Partitions {
		if pa.ReachableFragments > 0 {
			report.ReachablePartitions++
		}
	}
	report.Recoverable = report.ReachablePartitions >= report.RequiredPartitions
	return report
}

// probePartition pings every fragment replica of one partition and counts
// how many nodes answered. Nodes with a malformed recorded address are
// treated as unreachable rather than failing the whole probe.
func probePartition(ctx context.Context, idx int, p manifest.Partition, pinger transport.Pinger) PartitionAvailability {
	pa := PartitionAvailability{Index: idx, TotalFragments: len(p.Fragments)}
	for _, desc := range p.Fragments {
		node, err := candidateFromAddress(desc.NodeID, desc.NodeAddress)
		if err != nil {
			continue
		}
		if _, err := pinger.Ping(ctx, node); err != nil {
			continue
		}
		pa.ReachableFragments++
	}
	return pa
}

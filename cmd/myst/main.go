// cmd/myst is the zero-knowledge storage client: it encrypts, erasure
// codes, and distributes a file across storage nodes (upload), or fetches,
// decodes, and decrypts it back (download). Subcommand dispatch follows the
// teacher's cmd/nocturne-agent/main.go flag.NewFlagSet-per-subcommand shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ssd-technologies/myst/internal/config"
	"github.com/ssd-technologies/myst/internal/directory"
	"github.com/ssd-technologies/myst/internal/manifest"
	"github.com/ssd-technologies/myst/internal/pipeline"
	"github.com/ssd-technologies/myst/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "upload":
		cmdUpload(os.Args[2:])
	case "download":
		cmdDownload(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "info":
		cmdInfo(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	case "config":
		cmdConfig(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: myst <command> [flags]

Commands:
  upload    Encrypt, erasure code, and distribute a file
  download  Reconstruct a file from its recovery manifest
  verify    Check a manifest's fragments without downloading
  info      Print a manifest's metadata
  stats     List the directory's online nodes
  config    Print the resolved client configuration

Run 'myst <command> --help' for details on each command.
`)
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	partitions := fs.Int("partitions", pipeline.DefaultPartitions, "number of partitions")
	redundancy := fs.Int("redundancy", pipeline.DefaultRedundancy, "copies stored per shard")
	compression := fs.Bool("compress", true, "compress master ciphertext before partitioning")
	reedSolomon := fs.Bool("reed-solomon", true, "erasure code partitions with Reed-Solomon")
	password := fs.String("password", "", "optional master password")
	manifestOut := fs.String("manifest", "", "output manifest path (default <file>.myst)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: upload requires a file path")
		os.Exit(1)
	}
	path := fs.Arg(0)

	out := *manifestOut
	if out == "" {
		out = path + ".myst"
	}

	cfg := config.ClientConfigFromEnv()
	dirClient := directory.NewClient(cfg.DirectoryURL)
	txClient := transport.NewClient()

	opts := pipeline.UploadOptions{
		Partitions:     *partitions,
		Redundancy:     *redundancy,
		Compression:    *compression,
		ReedSolomon:    *reedSolomon,
		MasterPassword: *password,
	}

	m, err := pipeline.Upload(context.Background(), path, opts, dirClient, txClient, txClient)
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}

	if err := m.Save(out); err != nil {
		log.Fatalf("save manifest: %v", err)
	}

	fmt.Printf("Uploaded %s\n", path)
	fmt.Printf("  Manifest:   %s\n", out)
	fmt.Printf("  Partitions: %d, Redundancy: %d, Reed-Solomon: %v\n", opts.Partitions, opts.Redundancy, opts.ReedSolomon)
	fmt.Printf("  File hash:  %s\n", m.FileHash)
}

func cmdDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	manifestIn := fs.String("manifest", "", "manifest path (required)")
	output := fs.String("output", "", "output file path (required)")
	password := fs.String("password", "", "master password, if the manifest requires one")
	fs.Parse(args)

	if *manifestIn == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: --manifest and --output are required")
		os.Exit(1)
	}

	m, err := manifest.Load(*manifestIn)
	if err != nil {
		log.Fatalf("load manifest: %v", err)
	}

	txClient := transport.NewClient()
	opts := pipeline.DownloadOptions{OutputPath: *output, MasterPassword: *password}

	if _, err := pipeline.Download(context.Background(), m, opts, txClient); err != nil {
		log.Fatalf("download failed: %v", err)
	}

	fmt.Printf("Downloaded %s -> %s\n", *manifestIn, *output)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	manifestIn := fs.String("manifest", "", "manifest path (required)")
	fs.Parse(args)

	if *manifestIn == "" {
		fmt.Fprintln(os.Stderr, "Error: --manifest is required")
		os.Exit(1)
	}

	m, err := manifest.Load(*manifestIn)
	if err != nil {
		log.Fatalf("load manifest: %v", err)
	}

	txClient := transport.NewClient()
	report := pipeline.VerifyAvailability(context.Background(), m, txClient)

	for _, pa := range report.Partitions {
		fmt.Printf("  partition %d: %d/%d fragments reachable\n", pa.Index, pa.ReachableFragments, pa.TotalFragments)
	}
	fmt.Printf("Reachable partitions: %d/%d (need %d)\n", report.ReachablePartitions, report.TotalPartitions, report.RequiredPartitions)

	if !report.Recoverable {
		fmt.Println("verify FAILED: not enough reachable partitions to recover the file")
		os.Exit(1)
	}
	fmt.Println("verify OK: file is recoverable (no fragment data fetched or decrypted)")
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: info requires a manifest path")
		os.Exit(1)
	}

	m, err := manifest.Load(fs.Arg(0))
	if err != nil {
		log.Fatalf("load manifest: %v", err)
	}

	fmt.Printf("File:              %s\n", m.FileName)
	fmt.Printf("Original size:     %d bytes\n", m.OriginalSize)
	fmt.Printf("File hash:         %s\n", m.FileHash)
	fmt.Printf("Compressed:        %v\n", m.Compressed)
	fmt.Printf("Reed-Solomon:      %v\n", m.ReedSolomon)
	fmt.Printf("Password protected: %v\n", m.PasswordProtected())
	fmt.Printf("Partitions:        %d\n", len(m.Partitions))
	fmt.Printf("Total shards:      %d\n", m.TotalShards())
	fmt.Printf("Timestamp:         %d\n", m.Timestamp)
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	cfg := config.ClientConfigFromEnv()
	dirClient := directory.NewClient(cfg.DirectoryURL)

	nodes, err := dirClient.Discover(context.Background(), 0, 0)
	if err != nil {
		log.Fatalf("discover nodes: %v", err)
	}

	fmt.Printf("Directory: %s\n", cfg.DirectoryURL)
	fmt.Printf("Nodes online: %d\n", len(nodes))
	for _, n := range nodes {
		fmt.Printf("  %s  %s:%d  reliability=%.2f\n", n.ID, n.Address, n.Port, n.Reliability)
	}
}

func cmdConfig(args []string) {
	cfg := config.ClientConfigFromEnv()
	fmt.Printf("directory_url: %s\n", cfg.DirectoryURL)
}

// Command ledgerctl is the offline operator tool for a node's data
// directory: key generation and mnemonic-backed recovery, and exporting
// derived state for external analysis. It never opens a network listener
// and never mutates the chain's block sequence — it only reads and
// appends to the local key/metadata stores the daemon also uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/observability/logging"
	"glowmesh/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := logging.Setup("ledgerctl", "cli")
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(ctx, os.Args[2:], logger)
	case "recover":
		err = runRecover(ctx, os.Args[2:], logger)
	case "export-karma":
		err = runExportKarma(ctx, os.Args[2:], logger)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "ledgerctl: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ledgerctl <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  keygen --data-dir <dir>                         generate and persist a new node identity")
	fmt.Println("  recover --data-dir <dir> --node <nodeId>        restore a node key backup, checked against its mnemonic")
	fmt.Println("  export-karma --data-dir <dir> --out <file>      export Karma balances to a Parquet file")
}

// openStore opens the same Bolt-backed store the daemon persists its chain
// and keys into, at <dataDir>/chain.db (cmd/noded's convention).
func openStore(dataDir string) (storage.Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("--data-dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return storage.NewBoltStore(dataDir + "/chain.db")
}

// loadChain replays every persisted block into a read-only Chain, the same
// replay loadOrInitChain performs, minus genesis minting: export and
// recovery only ever run against a data directory a node has already
// initialized.
func loadChain(ctx context.Context, store storage.Store, logger *slog.Logger) (*chain.Chain, error) {
	highest, ok, err := store.HighestBlockIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading highest block index: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("data directory has no persisted blocks yet")
	}
	blocks := make([]types.Block, 0, highest+1)
	for i := uint64(0); i <= highest; i++ {
		raw, err := store.GetBlock(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("reading block %d: %w", i, err)
		}
		var b types.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decoding block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	return chain.LoadFromBlocks(blocks, chain.WithLogger(logger))
}

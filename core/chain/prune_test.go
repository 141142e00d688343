package chain

import (
	"context"
	"encoding/json"
	"testing"

	"glowmesh/storage"
)

func TestPruneKeepsOnlyTrailingBlocksAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	c, genesis := newChainWithGenesis(t, "chain-a")
	tip := genesis
	store := storage.NewMemStore()
	defer store.Close()

	blockJSON, err := json.Marshal(genesis)
	if err != nil {
		t.Fatalf("marshal genesis: %v", err)
	}
	if err := store.PutBlock(ctx, genesis.Header.Index, blockJSON); err != nil {
		t.Fatalf("PutBlock genesis: %v", err)
	}

	for i, id := range []string{"nA", "nB", "nC", "nD"} {
		b := nodeJoinBlock(t, &tip, id, int64(1001+i), id, id, "")
		if err := c.Apply(b); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		bj, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal block: %v", err)
		}
		if err := store.PutBlock(ctx, b.Header.Index, bj); err != nil {
			t.Fatalf("PutBlock: %v", err)
		}
		tip = b
	}
	// chain now has 5 blocks (indices 0..4).

	c.pruneKeepBlocks = 2
	c.checkpointInterval = 1
	if err := c.Prune(ctx, store); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	tipAfter, ok := c.Tip()
	if !ok {
		t.Fatal("Tip() ok = false")
	}
	if tipAfter.Header.Index != 4 {
		t.Fatalf("tip index = %d, want 4", tipAfter.Header.Index)
	}
	if len(c.Checkpoints()) == 0 {
		t.Fatal("expected at least one checkpoint to be produced")
	}
	if _, err := store.GetBlock(ctx, 0); err == nil {
		t.Fatal("pruned block 0 should no longer be retrievable from the store")
	}
	if _, err := store.GetBlock(ctx, 4); err != nil {
		t.Fatalf("surviving block 4 should still be retrievable: %v", err)
	}
}

func TestPruneIsNoOpBelowThreshold(t *testing.T) {
	ctx := context.Background()
	c, _ := newChainWithGenesis(t, "chain-a")
	c.pruneKeepBlocks = 1000
	store := storage.NewMemStore()
	defer store.Close()

	if err := c.Prune(ctx, store); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

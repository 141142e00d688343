package lightclient

import (
	"context"
	"testing"

	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/merkle"
	"glowmesh/storage"
)

func header(t *testing.T, prev *types.LightHeader, proposer string, nonce uint64) types.LightHeader {
	t.Helper()
	index := uint64(0)
	var prevHash *string
	if prev != nil {
		index = prev.Header.Index + 1
		h := prev.Hash
		prevHash = &h
	}
	root := merkle.New([]string{merkle.LeafHash([]byte("tx"))}).Root()
	h := types.BlockHeader{
		Index:        index,
		Timestamp:    int64(index) + 1,
		PreviousHash: prevHash,
		MerkleRoot:   root,
		Proposer:     proposer,
		Nonce:        nonce,
	}
	hash, err := h.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	return types.LightHeader{Header: h, Hash: hash}
}

func TestAppendHeaderBuildsChainAndRejectsBrokenLink(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := New(store)

	genesis := header(t, nil, "root", 0)
	if err := c.AppendHeader(ctx, genesis); err != nil {
		t.Fatalf("append genesis: %v", err)
	}

	next := header(t, &genesis, "root", 1)
	if err := c.AppendHeader(ctx, next); err != nil {
		t.Fatalf("append next: %v", err)
	}

	tip, ok := c.Tip()
	if !ok || tip.Header.Index != 1 {
		t.Fatalf("Tip() = %+v, %v; want index 1", tip, ok)
	}

	brokenHeader := types.BlockHeader{
		Index:        2,
		Timestamp:    3,
		PreviousHash: nil,
		MerkleRoot:   merkle.New([]string{merkle.LeafHash([]byte("tx"))}).Root(),
		Proposer:     "attacker",
		Nonce:        2,
	}
	brokenHash, err := brokenHeader.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	broken := types.LightHeader{Header: brokenHeader, Hash: brokenHash}
	if err := c.AppendHeader(ctx, broken); err == nil {
		t.Fatal("expected a header with a missing previousHash to be rejected")
	}
}

func TestAppendHeaderRejectsTamperedHash(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMemStore())

	genesis := header(t, nil, "root", 0)
	genesis.Hash = "not-the-real-hash"
	if err := c.AppendHeader(ctx, genesis); err == nil {
		t.Fatal("expected tampered hash to be rejected")
	}
}

func TestLoadFromStoreRehydratesHeaders(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := New(store)

	genesis := header(t, nil, "root", 0)
	if err := c.AppendHeader(ctx, genesis); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	next := header(t, &genesis, "root", 1)
	if err := c.AppendHeader(ctx, next); err != nil {
		t.Fatalf("append next: %v", err)
	}

	reloaded := New(store)
	if err := reloaded.LoadFromStore(ctx); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}
	tip, ok := reloaded.Tip()
	if !ok || tip.Header.Index != 1 {
		t.Fatalf("rehydrated Tip() = %+v, %v; want index 1", tip, ok)
	}
}

func TestHeaderAtOutOfRangeReturnsFalse(t *testing.T) {
	c := New(storage.NewMemStore())
	genesis := header(t, nil, "root", 0)
	ctx := context.Background()
	if err := c.AppendHeader(ctx, genesis); err != nil {
		t.Fatalf("append genesis: %v", err)
	}
	if _, ok := c.HeaderAt(5); ok {
		t.Fatal("expected HeaderAt(5) to report not-found")
	}
}

func TestVerifyTransactionRejectsHeaderMismatch(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMemStore())
	genesis := header(t, nil, "root", 0)
	if err := c.AppendHeader(ctx, genesis); err != nil {
		t.Fatalf("append genesis: %v", err)
	}

	proof := chain.TransactionProof{
		BlockIndex: 0,
		BlockHash:  "not-the-held-hash",
		Header:     genesis.Header,
	}
	ok, err := c.VerifyTransaction(proof)
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if ok {
		t.Fatal("expected a block-hash mismatch to fail verification")
	}
}

func TestVerifyTransactionUnknownBlockErrors(t *testing.T) {
	c := New(storage.NewMemStore())
	_, err := c.VerifyTransaction(chain.TransactionProof{BlockIndex: 9})
	if err == nil {
		t.Fatal("expected an unknown block index to error")
	}
}

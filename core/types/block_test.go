package types

import "testing"

func TestBlockHeaderComputeHashDeterministic(t *testing.T) {
	h := BlockHeader{
		Index:      0,
		Timestamp:  1000,
		MerkleRoot: "abc",
		Proposer:   "node_root",
	}
	a, err := h.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	b, err := h.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if a != b {
		t.Fatalf("ComputeHash is not deterministic: %q vs %q", a, b)
	}
}

func TestBlockFinalizeAndVerifyHash(t *testing.T) {
	block := Block{
		Header: BlockHeader{
			Index:      0,
			Timestamp:  1000,
			MerkleRoot: "abc",
			Proposer:   "node_root",
		},
	}
	if err := block.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	ok, err := block.VerifyHash()
	if err != nil {
		t.Fatalf("VerifyHash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyHash should report true immediately after Finalize")
	}

	block.Header.Nonce = 1
	ok, err = block.VerifyHash()
	if err != nil {
		t.Fatalf("VerifyHash: %v", err)
	}
	if ok {
		t.Fatal("VerifyHash must report false once the header changes without refinalizing")
	}
}

func TestBlockHeaderHashChangesWithPreviousHash(t *testing.T) {
	prevA := "a"
	prevB := "b"
	hA, err := BlockHeader{Index: 1, PreviousHash: &prevA}.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	hB, err := BlockHeader{Index: 1, PreviousHash: &prevB}.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if hA == hB {
		t.Fatal("distinct previousHash values must produce distinct header hashes")
	}
}

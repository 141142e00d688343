package chain

import "testing"

func TestProveAndVerifyTransactionRoundTrip(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	join := nodeJoinBlock(t, &genesis, "nA", 1001, "nA", "A", "")
	if err := c.Apply(join); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	proof, err := c.ProveTransaction(join.Header.Index, 0)
	if err != nil {
		t.Fatalf("ProveTransaction: %v", err)
	}
	ok, err := VerifyTransactionProof(proof)
	if err != nil {
		t.Fatalf("VerifyTransactionProof: %v", err)
	}
	if !ok {
		t.Fatal("valid proof failed to verify")
	}
}

func TestVerifyTransactionProofFailsForTamperedTransaction(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	join := nodeJoinBlock(t, &genesis, "nA", 1001, "nA", "A", "")
	if err := c.Apply(join); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	proof, err := c.ProveTransaction(join.Header.Index, 0)
	if err != nil {
		t.Fatalf("ProveTransaction: %v", err)
	}
	proof.Transaction.Sender = "tampered"
	ok, err := VerifyTransactionProof(proof)
	if err != nil {
		t.Fatalf("VerifyTransactionProof: %v", err)
	}
	if ok {
		t.Fatal("tampered transaction must not verify")
	}
}

func TestProveTransactionRejectsOutOfRangeIndex(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	if _, err := c.ProveTransaction(genesis.Header.Index, 5); err == nil {
		t.Fatal("ProveTransaction must reject an out-of-range transaction index")
	}
	if _, err := c.ProveTransaction(999, 0); err == nil {
		t.Fatal("ProveTransaction must reject an unknown block index")
	}
}

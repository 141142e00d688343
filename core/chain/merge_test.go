package chain

import (
	"testing"

	"glowmesh/core/types"
)

// Scenario 7: unique-node merge. A peer's chain carries an identity the
// local chain has never seen; merging donates it as a freshly reconstructed
// block proposed by the local node.
func TestMergeUniqueNodesDonatesMissingIdentity(t *testing.T) {
	localChain, localGenesis := newChainWithGenesis(t, "chain-local")
	peerChain, peerGenesis := newChainWithGenesis(t, "chain-peer")
	peerJoin := nodeJoinBlock(t, &peerGenesis, "nPeer", 1001, "nPeer", "Peer", "")
	if err := peerChain.Apply(peerJoin); err != nil {
		t.Fatalf("peer Apply: %v", err)
	}

	_ = localGenesis
	donated, err := localChain.MergeUniqueNodes(peerChain.Blocks(), "nLocal")
	if err != nil {
		t.Fatalf("MergeUniqueNodes: %v", err)
	}
	if len(donated) != 1 {
		t.Fatalf("len(donated) = %d, want 1", len(donated))
	}
	if donated[0].Header.Proposer != "nLocal" {
		t.Fatalf("donated block proposer = %q, want nLocal", donated[0].Header.Proposer)
	}
	if _, ok := localChain.State().NodeMap["nPeer"]; !ok {
		t.Fatal("local node map must contain the donated identity")
	}
	if localChain.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", localChain.Len())
	}
}

// A donated join whose parentId is unknown to the receiver has that
// parentId cleared rather than rejected outright.
func TestMergeUniqueNodesClearsUnknownParent(t *testing.T) {
	localChain, _ := newChainWithGenesis(t, "chain-local")
	peerChain, peerGenesis := newChainWithGenesis(t, "chain-peer")
	peerParent := nodeJoinBlock(t, &peerGenesis, "nParent", 1001, "nParent", "Parent", "")
	if err := peerChain.Apply(peerParent); err != nil {
		t.Fatalf("peer Apply parent: %v", err)
	}
	peerChild := nodeJoinBlock(t, &peerParent, "nParent", 1002, "nChild", "Child", "nParent")
	if err := peerChain.Apply(peerChild); err != nil {
		t.Fatalf("peer Apply child: %v", err)
	}

	// Receiver only merges the child's block — nParent stays unknown to it.
	donated, err := localChain.MergeUniqueNodes([]types.Block{peerChild}, "nLocal")
	_ = donated
	if err != nil {
		t.Fatalf("MergeUniqueNodes: %v", err)
	}
	entry, ok := localChain.State().NodeMap["nChild"]
	if !ok {
		t.Fatal("expected nChild to be donated")
	}
	if len(entry.ParentIDs) != 0 {
		t.Fatalf("parentIds = %v, want empty (unknown parent cleared)", entry.ParentIDs)
	}
}

// Merging the same peer blocks twice appends nothing the second time.
func TestMergeUniqueNodesIsIdempotent(t *testing.T) {
	localChain, _ := newChainWithGenesis(t, "chain-local")
	peerChain, peerGenesis := newChainWithGenesis(t, "chain-peer")
	peerJoin := nodeJoinBlock(t, &peerGenesis, "nPeer", 1001, "nPeer", "Peer", "")
	if err := peerChain.Apply(peerJoin); err != nil {
		t.Fatalf("peer Apply: %v", err)
	}

	if _, err := localChain.MergeUniqueNodes(peerChain.Blocks(), "nLocal"); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	secondDonated, err := localChain.MergeUniqueNodes(peerChain.Blocks(), "nLocal")
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if len(secondDonated) != 0 {
		t.Fatalf("len(secondDonated) = %d, want 0", len(secondDonated))
	}
}

func TestMergeUniqueNodesOnEmptyChainErrors(t *testing.T) {
	c := &Chain{state: newDerivedState()}
	if _, err := c.MergeUniqueNodes(nil, "nLocal"); err == nil {
		t.Fatal("MergeUniqueNodes on a chain with no blocks must error")
	}
}

package chain

import (
	"testing"

	"glowmesh/core/types"
)

// Scenario 6: divergent genesis, equal length — both chains carry a unique
// marker, so the earlier genesis timestamp wins and the later one is
// rejected.
func TestReplaceChainDivergentGenesisEqualLengthEarlierWins(t *testing.T) {
	c, _ := newChainWithGenesis(t, "chain-a") // genesis timestamp 1000
	earlier := genesisBlock(t, "chain-b", 500)

	if err := c.ReplaceChain([]types.Block{earlier}); err != nil {
		t.Fatalf("ReplaceChain with earlier-timestamped marked genesis should be accepted: %v", err)
	}
	tip, _ := c.Tip()
	if tip.Hash != earlier.Hash {
		t.Fatal("chain did not replace with the earlier genesis")
	}
}

func TestReplaceChainDivergentGenesisEqualLengthLaterRejected(t *testing.T) {
	c, _ := newChainWithGenesis(t, "chain-a") // genesis timestamp 1000
	later := genesisBlock(t, "chain-b", 1500)

	if err := c.ReplaceChain([]types.Block{later}); err == nil {
		t.Fatal("ReplaceChain with a later-timestamped marked genesis must be rejected")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (rejected candidate must not mutate local chain)", c.Len())
	}
}

// A candidate genesis carrying no unique marker never beats a local one
// that has one, even with an earlier timestamp.
func TestReplaceChainMarkerPresenceDominatesTimestamp(t *testing.T) {
	c, _ := newChainWithGenesis(t, "chain-a") // has a marker
	noMarker := genesisBlock(t, "", 1) // empty marker, much earlier timestamp

	if err := c.ReplaceChain([]types.Block{noMarker}); err == nil {
		t.Fatal("a markerless candidate must never win over a marked local genesis")
	}
}

// A longer candidate sharing the same genesis hash is accepted outright.
func TestReplaceChainAcceptsLongerCompatibleCandidate(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	join := nodeJoinBlock(t, &genesis, "nA", 1001, "nA", "A", "")

	if err := c.ReplaceChain([]types.Block{genesis, join}); err != nil {
		t.Fatalf("ReplaceChain: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if c.GetNodeRole("nA") != RoleRoot {
		t.Fatal("replaying via ReplaceChain must reproduce the same derived state as Apply")
	}
}

// A longer candidate with a divergent genesis is rejected even though it is
// longer (spec §4.3: length alone never overrides genesis compatibility).
func TestReplaceChainRejectsLongerDivergentCandidate(t *testing.T) {
	c, _ := newChainWithGenesis(t, "chain-a")
	otherGenesis := genesisBlock(t, "chain-b", 500)
	otherJoin := nodeJoinBlock(t, &otherGenesis, "nA", 1001, "nA", "A", "")

	if err := c.ReplaceChain([]types.Block{otherGenesis, otherJoin}); err == nil {
		t.Fatal("ReplaceChain must reject a longer candidate with a divergent genesis")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

// A shorter candidate never replaces a longer local chain.
func TestReplaceChainRejectsShorterCandidate(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	join := nodeJoinBlock(t, &genesis, "nA", 1001, "nA", "A", "")
	if err := c.Apply(join); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := c.ReplaceChain([]types.Block{genesis}); err == nil {
		t.Fatal("ReplaceChain must reject a shorter candidate")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

// Identical history is a no-op, not an error either way is acceptable, but
// it must never discard local state.
func TestReplaceChainIdenticalHistoryIsNoOp(t *testing.T) {
	c, genesis := newChainWithGenesis(t, "chain-a")
	_ = c.ReplaceChain([]types.Block{genesis})
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	tip, _ := c.Tip()
	if tip.Hash != genesis.Hash {
		t.Fatal("replacing with identical history must not change the tip")
	}
}

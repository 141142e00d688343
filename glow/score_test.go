package glow

import (
	"testing"

	"github.com/holiman/uint256"

	"glowmesh/core/chain"
)

func newState() *chain.DerivedState {
	return &chain.DerivedState{
		NodeRoles:             make(map[string]chain.Role),
		Institutions:          make(map[string]*chain.Institution),
		PendingInstitutions:   make(map[string]*chain.PendingInstitution),
		SoulboundTokens:       make(map[string][]*chain.SoulboundToken),
		ActiveProposals:       make(map[string]*chain.Proposal),
		AccountStates:         make(map[string]*chain.AccountState),
		PendingParentRequests: make(map[string]map[string]*chain.ParentRequest),
		KarmaBalances:         make(map[string]*uint256.Int),
		NodeMap:               make(map[string]*chain.NodeMapEntry),
	}
}

func TestScoreZeroForUnknownNode(t *testing.T) {
	state := newState()
	if got := Score(state, "nobody"); got != 0 {
		t.Fatalf("Score(unknown) = %d, want 0", got)
	}
}

func TestScoreCombinesAllComponents(t *testing.T) {
	state := newState()
	state.NodeMap["nA"] = &chain.NodeMapEntry{NodeID: "nA", ChildCount: 2}
	state.KarmaBalances["nA"] = uint256.NewInt(250)
	state.Institutions["nA"] = &chain.Institution{NodeID: "nA"}
	state.SoulboundTokens["nA"] = []*chain.SoulboundToken{
		{Recipient: "nA", IssuerRevoked: false},
		{Recipient: "nA", IssuerRevoked: true},
	}

	got := Score(state, "nA")
	want := int64(2)*WeightChild + int64(250/WeightKarmaDivisor) + int64(1)*WeightVerifiedSoulbound + WeightInstitution
	if got != want {
		t.Fatalf("Score = %d, want %d", got, want)
	}
}

func TestScoreExcludesRevokedIssuerTokens(t *testing.T) {
	state := newState()
	state.SoulboundTokens["nB"] = []*chain.SoulboundToken{
		{Recipient: "nB", IssuerRevoked: true},
	}
	if got := Score(state, "nB"); got != 0 {
		t.Fatalf("Score = %d, want 0 (revoked-issuer tokens must not count)", got)
	}
}

// Package glow derives a read-only composite standing score for each node
// from the chain's derived state. The spec names the component's inputs
// and its existence but leaves the formula open; score.go documents the
// choice made here rather than treating a guess as given (see DESIGN.md).
package glow

import (
	"glowmesh/core/chain"
)

// Weights used by Score. Exported so callers (and tests) can recompute
// expected values without duplicating the formula.
const (
	WeightChild           = 3
	WeightKarmaDivisor     = 100
	WeightVerifiedSoulbound = 5
	WeightInstitution      = 10
)

// Score computes nodeID's composite standing from state: child count
// (network growth contribution), Karma balance (participation), count of
// soulbound tokens issued by still-verified (non-revoked) institutions
// (credentialed achievement), and a flat institution bonus.
func Score(state *chain.DerivedState, nodeID string) int64 {
	entry, ok := state.NodeMap[nodeID]
	childCount := 0
	if ok {
		childCount = entry.ChildCount
	}

	karma := state.KarmaBalance(nodeID)
	karmaScore := int64(0)
	if karma != nil {
		karmaScore = int64(karma.Uint64() / WeightKarmaDivisor)
	}

	verifiedSoulbound := 0
	for _, token := range state.SoulboundTokens[nodeID] {
		if !token.IssuerRevoked {
			verifiedSoulbound++
		}
	}

	institutionBonus := int64(0)
	if state.IsVerifiedInstitution(nodeID) {
		institutionBonus = WeightInstitution
	}

	return int64(childCount)*WeightChild + karmaScore + int64(verifiedSoulbound)*WeightVerifiedSoulbound + institutionBonus
}

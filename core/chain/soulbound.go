package chain

import (
	"encoding/json"

	"glowmesh/core/types"
)

// handleSoulboundMint enforces spec invariant #5 in full: sender must be a
// currently-verified institution, sender != recipient, recipient must
// exist, and recipient's parentIds must contain sender. Grounded on the
// teacher's native/reputation Engine-wraps-Ledger shape (a thin handler
// appending an immutable record), repurposed here for non-transferable
// credentials instead of skill attestations — once appended, a token is
// never removed by any later transaction (enforced simply by there being no
// delete path anywhere in this package).
func (c *Chain) handleSoulboundMint(tx types.Transaction) {
	var payload types.SoulboundMintPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if !c.state.IsVerifiedInstitution(tx.Sender) {
		c.warn("sender is not a verified institution", tx)
		return
	}
	if tx.Sender == payload.Recipient {
		c.warn("sender cannot mint to itself", tx)
		return
	}
	if _, ok := c.state.NodeMap[payload.Recipient]; !ok {
		c.warn("recipient does not exist", tx)
		return
	}
	if !c.state.IsChildOf(payload.Recipient, tx.Sender) {
		c.warn("recipient is not a child of sender", tx)
		return
	}
	token := &SoulboundToken{
		Issuer:         tx.Sender,
		Recipient:      payload.Recipient,
		AchievementID:  payload.AchievementID,
		Metadata:       payload.Metadata,
		MintedAt:       tx.Timestamp,
		IsTransferable: false,
		IssuerRevoked:  false,
	}
	c.state.SoulboundTokens[payload.Recipient] = append(c.state.SoulboundTokens[payload.Recipient], token)
}

// SoulboundTokensFor returns a defensive copy of a recipient's credential
// list.
func (s *DerivedState) SoulboundTokensFor(recipient string) []*SoulboundToken {
	tokens := s.SoulboundTokens[recipient]
	out := make([]*SoulboundToken, len(tokens))
	for i, t := range tokens {
		cp := *t
		out[i] = &cp
	}
	return out
}

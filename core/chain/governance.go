package chain

import (
	"encoding/json"

	"glowmesh/core/types"
)

// handleGovProposal creates a governance proposal, grounded on the
// teacher's native/governance Proposal record shape but narrowed to the
// spec's two-transaction surface: no deposit period or timelock, since
// nothing in the closed transaction tag set carries those fields.
func (c *Chain) handleGovProposal(blockIndex uint64, tx types.Transaction) {
	var payload types.GovProposalPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if payload.ProposalID == "" {
		c.warn("missing proposalId", tx)
		return
	}
	if _, exists := c.state.ActiveProposals[payload.ProposalID]; exists {
		c.warn("proposal id already exists", tx)
		return
	}
	c.state.ActiveProposals[payload.ProposalID] = &Proposal{
		ID:                 payload.ProposalID,
		Title:              payload.Title,
		Description:        payload.Description,
		Proposer:           tx.Sender,
		CreatedAtBlock:     blockIndex,
		VotingPeriodBlocks: payload.VotingPeriodBlocks,
		QuorumThreshold:    payload.QuorumThreshold,
		Tally:              make(map[types.VoteChoice]uint64),
		Voters:             make(map[string]types.VoteChoice),
	}
}

// handleVoteCast records a ballot, enforcing spec invariant #9: a voter
// appears at most once in a proposal's voters list. Re-voting is rejected
// outright (no-op) rather than overwriting the prior ballot — the spec
// names uniqueness as the invariant, not vote-changing semantics, so this
// package does not invent a "change your vote" feature it was never asked
// to support.
func (c *Chain) handleVoteCast(tx types.Transaction) {
	var payload types.VoteCastPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	proposal, ok := c.state.ActiveProposals[payload.ProposalID]
	if !ok {
		c.warn("unknown proposal", tx)
		return
	}
	if _, already := proposal.Voters[tx.Sender]; already {
		c.warn("sender has already voted", tx)
		return
	}
	proposal.Voters[tx.Sender] = payload.Choice
	proposal.Tally[payload.Choice]++
}

package chain

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"glowmesh/core/types"
)

// handleKarmaEarn credits a node's balance for a named off-chain activity.
// There is no sender-side debit: Karma earned this way flows into
// existence here (mirrored by KARMA_UBI below), while KARMA_TRANSFER is
// the only handler that moves Karma between two existing balances.
func (c *Chain) handleKarmaEarn(tx types.Transaction) {
	var payload types.KarmaEarnPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if payload.Recipient == "" {
		c.warn("missing recipient", tx)
		return
	}
	c.creditKarma(payload.Recipient, uint256.NewInt(payload.Amount))
}

// handleKarmaTransfer moves Karma from sender to recipient, rejecting the
// transaction outright (no partial effect) when the sender's balance is
// insufficient — balances must never go negative (spec invariant #6).
func (c *Chain) handleKarmaTransfer(tx types.Transaction) {
	var payload types.KarmaTransferPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if tx.Sender == payload.Recipient {
		c.warn("sender cannot transfer to itself", tx)
		return
	}
	amount := uint256.NewInt(payload.Amount)
	senderBalance := c.state.KarmaBalance(tx.Sender)
	if senderBalance.Lt(amount) {
		c.warn("insufficient karma balance", tx)
		return
	}
	c.state.KarmaBalances[tx.Sender] = new(uint256.Int).Sub(senderBalance, amount)
	c.creditKarma(payload.Recipient, amount)
}

// handleKarmaUBI credits every currently-known node an equal basic-income
// amount, honored only from ROOT or GOVERNANCE_ADMIN (spec invariant #4).
// NodeMap, not NodeRoles, is the membership source: every node that has
// ever joined is eligible, independent of the role it was assigned.
func (c *Chain) handleKarmaUBI(tx types.Transaction) {
	role := c.state.GetNodeRole(tx.Sender)
	if role != RoleRoot && role != RoleGovernanceAdmin {
		c.warn("sender lacks UBI authority", tx)
		return
	}
	var payload types.KarmaUBIPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	amount := uint256.NewInt(payload.Amount)
	for nodeID := range c.state.NodeMap {
		c.creditKarma(nodeID, amount)
	}
}

func (c *Chain) creditKarma(nodeID string, amount *uint256.Int) {
	current := c.state.KarmaBalance(nodeID)
	c.state.KarmaBalances[nodeID] = new(uint256.Int).Add(current, amount)
}

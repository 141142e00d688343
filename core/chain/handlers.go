package chain

import (
	"encoding/json"

	"glowmesh/core/types"
)

// handleNodeJoin assigns roles per spec invariant #3: the chain's very
// first NODE_JOIN transaction grants ROLE_ROOT; every other unknown-role
// join grants ROLE_USER; an existing role (e.g. an institution that joined
// and was later verified) is never overwritten. Node creation itself
// (name/publicKey/parentIds/createdAt) is handled by buildNodeMap, already
// rebuilt before dispatch runs (spec §9).
func (c *Chain) handleNodeJoin(tx types.Transaction, firstJoinNodeID string) {
	if _, ok := c.state.NodeRoles[tx.NodeID]; ok {
		return // role already assigned; joins never downgrade it.
	}
	if tx.NodeID == firstJoinNodeID {
		c.state.NodeRoles[tx.NodeID] = RoleRoot
		return
	}
	c.state.NodeRoles[tx.NodeID] = RoleUser
}

// handleNodeParentRequest records a child's request to attach under a
// parent, queued for the parent's own decision (spec §3.1's
// pendingParentRequests; resolution is an application-level concern
// surfaced over the network layer's PARENT_REQUEST/RESPONSE messages, not a
// further on-chain transaction type).
func (c *Chain) handleNodeParentRequest(tx types.Transaction) {
	var payload types.NodeParentRequestPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if payload.ParentID == "" {
		c.warn("missing parentId", tx)
		return
	}
	byParent, ok := c.state.PendingParentRequests[payload.ParentID]
	if !ok {
		byParent = make(map[string]*ParentRequest)
		c.state.PendingParentRequests[payload.ParentID] = byParent
	}
	byParent[tx.Sender] = &ParentRequest{Child: tx.Sender, RequestedAt: tx.Timestamp}
}

// handleInstitutionRegister records a self-submitted application.
func (c *Chain) handleInstitutionRegister(tx types.Transaction) {
	var payload types.InstitutionRegisterPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	c.state.PendingInstitutions[tx.Sender] = &PendingInstitution{
		NodeID:      tx.Sender,
		Name:        payload.Name,
		Category:    payload.Category,
		SubmittedAt: tx.Timestamp,
	}
}

// handleInstitutionVerify is honored only from ROOT or GOVERNANCE_ADMIN
// (spec invariant #4).
func (c *Chain) handleInstitutionVerify(tx types.Transaction) {
	role := c.state.GetNodeRole(tx.Sender)
	if role != RoleRoot && role != RoleGovernanceAdmin {
		c.warn("sender lacks verification authority", tx)
		return
	}
	var payload types.InstitutionVerifyPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	pending, ok := c.state.PendingInstitutions[payload.TargetNodeID]
	if !ok {
		c.warn("no pending application for target", tx)
		return
	}
	delete(c.state.PendingInstitutions, payload.TargetNodeID)
	if !payload.Approved {
		return
	}
	c.state.Institutions[payload.TargetNodeID] = &Institution{
		NodeID:     payload.TargetNodeID,
		Name:       pending.Name,
		Category:   pending.Category,
		VerifiedBy: tx.Sender,
		VerifiedAt: tx.Timestamp,
	}
	c.state.NodeRoles[payload.TargetNodeID] = RoleInstitution
}

// handleInstitutionRevoke is honored only from ROOT (spec invariant #4).
// Revocation flips Institution.Revoked but never removes previously minted
// soulbound tokens (spec invariant #5, Open Question decision #3).
func (c *Chain) handleInstitutionRevoke(tx types.Transaction) {
	if c.state.GetNodeRole(tx.Sender) != RoleRoot {
		c.warn("sender lacks revocation authority", tx)
		return
	}
	var payload types.InstitutionRevokePayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	inst, ok := c.state.Institutions[payload.TargetNodeID]
	if !ok {
		c.warn("target is not a verified institution", tx)
		return
	}
	inst.Revoked = true
	inst.RevokedAt = tx.Timestamp
	for _, tokens := range c.state.SoulboundTokens {
		for _, token := range tokens {
			if token.Issuer == payload.TargetNodeID {
				token.IssuerRevoked = true // stored record is preserved, never removed
			}
		}
	}
}

// handleSocialRecoveryUpdate sets guardians and recovery threshold, subject
// to spec invariant #8.
func (c *Chain) handleSocialRecoveryUpdate(tx types.Transaction) {
	var payload types.SocialRecoveryUpdatePayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		c.warn("malformed payload", tx)
		return
	}
	if len(payload.Guardians) == 0 {
		c.warn("guardians must be non-empty", tx)
		return
	}
	if payload.Threshold < 1 || payload.Threshold > len(payload.Guardians) {
		c.warn("recoveryThreshold out of range", tx)
		return
	}
	c.state.AccountStates[tx.Sender] = &AccountState{
		Guardians:         append([]string(nil), payload.Guardians...),
		RecoveryThreshold: payload.Threshold,
	}
}

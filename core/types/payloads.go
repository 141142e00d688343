package types

// This file declares the type-specific payload shapes referenced by
// Transaction.Payload (spec §3.1's transaction table). Handlers in
// core/chain decode json.RawMessage into the matching struct for the
// transaction's Type.

// GenesisPayload carries the unique marker that makes a freshly minted
// chain distinguishable from any other (spec §3.1, §4.3 tiebreaker).
type GenesisPayload struct {
	UniqueMarker string `json:"uniqueMarker"`
}

// NodeJoinPayload introduces a node identity.
type NodeJoinPayload struct {
	Name                string `json:"name"`
	PublicKey           string `json:"publicKey"` // base64 raw Ed25519 public key
	ParentID            string `json:"parentId,omitempty"`
	RecoveryPhraseHash  string `json:"recoveryPhraseHash,omitempty"`
}

// NodeParentRequestPayload asks to be attached under a parent node.
type NodeParentRequestPayload struct {
	ParentID string `json:"parentId"`
}

// NodeParentUpdatePayload mutates a parent-child edge.
type NodeParentUpdatePayload struct {
	Action   ParentUpdateAction `json:"action"`
	ParentID string             `json:"parentId,omitempty"`
}

// InstitutionRegisterPayload is a self-submitted institution application.
type InstitutionRegisterPayload struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// InstitutionVerifyPayload approves or rejects a pending application.
type InstitutionVerifyPayload struct {
	TargetNodeID string `json:"targetNodeId"`
	Approved     bool   `json:"approved"`
}

// InstitutionRevokePayload revokes institution status.
type InstitutionRevokePayload struct {
	TargetNodeID string `json:"targetNodeId"`
	Reason       string `json:"reason,omitempty"`
}

// SoulboundMintPayload issues a non-transferable credential.
type SoulboundMintPayload struct {
	Recipient     string `json:"recipient"`
	AchievementID string `json:"achievementId"`
	Metadata      string `json:"metadata,omitempty"`
}

// GovProposalPayload creates a governance proposal.
type GovProposalPayload struct {
	ProposalID        string `json:"proposalId"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	VotingPeriodBlocks uint64 `json:"votingPeriodBlocks"`
	QuorumThreshold   uint64 `json:"quorumThreshold"`
}

// VoteCastPayload casts a ballot on a proposal.
type VoteCastPayload struct {
	ProposalID string     `json:"proposalId"`
	Choice     VoteChoice `json:"choice"`
}

// SocialRecoveryUpdatePayload sets guardians and recovery threshold.
type SocialRecoveryUpdatePayload struct {
	Guardians []string `json:"guardians"`
	Threshold int      `json:"threshold"`
}

// KarmaEarnPayload is a system-minted reward for a named activity.
type KarmaEarnPayload struct {
	Recipient string `json:"recipient"`
	Activity  string `json:"activity"`
	Amount    uint64 `json:"amount"`
}

// KarmaTransferPayload debits sender and credits recipient.
type KarmaTransferPayload struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// KarmaUBIPayload is a periodic system grant applied equally to every node
// in the current node map.
type KarmaUBIPayload struct {
	Amount uint64 `json:"amount"`
	Epoch  uint64 `json:"epoch"`
}

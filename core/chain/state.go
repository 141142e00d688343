package chain

import (
	"github.com/holiman/uint256"

	"glowmesh/core/types"
)

// Role is one of the four node roles spec §3.1 names.
type Role string

const (
	RoleUser            Role = "USER"
	RoleInstitution     Role = "INSTITUTION"
	RoleGovernanceAdmin Role = "GOVERNANCE_ADMIN"
	RoleRoot            Role = "ROOT"
)

// Institution is a verified institution's metadata and verification
// provenance (spec §3.1).
type Institution struct {
	NodeID         string `json:"nodeId"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	VerifiedBy     string `json:"verifiedBy"`
	VerifiedAt     int64  `json:"verifiedAt"`
	Revoked        bool   `json:"revoked"`
	RevokedAt      int64  `json:"revokedAt,omitempty"`
}

// PendingInstitution is an application awaiting a verify/reject decision.
type PendingInstitution struct {
	NodeID      string `json:"nodeId"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	SubmittedAt int64  `json:"submittedAt"`
}

// SoulboundToken is a non-transferable credential record (spec §3.1,
// invariant #5). IsTransferable is always false at mint — soulbound tokens
// are non-transferable by construction (spec §8 scenario 5) — and is never
// flipped later; it is not what institution revocation touches.
// IssuerRevoked is additive read-model information (DESIGN.md's Open
// Question decision #3): the stored record is never mutated away or
// removed, only this derived flag changes as the issuer's verification
// status changes, so holders and verifiers can distinguish "credential
// from a still-accredited institution" from "credential whose issuer was
// later revoked" without the ledger pretending the credential vanished.
type SoulboundToken struct {
	Issuer         string `json:"issuer"`
	Recipient      string `json:"recipient"`
	AchievementID  string `json:"achievementId"`
	Metadata       string `json:"metadata,omitempty"`
	MintedAt       int64  `json:"mintedAt"`
	IsTransferable bool   `json:"isTransferable"`
	IssuerRevoked  bool   `json:"issuerRevoked"`
}

// Proposal is a governance record with tallied votes (spec §3.1).
type Proposal struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	Proposer           string            `json:"proposer"`
	CreatedAtBlock     uint64            `json:"createdAtBlock"`
	VotingPeriodBlocks uint64            `json:"votingPeriodBlocks"`
	QuorumThreshold    uint64            `json:"quorumThreshold"`
	Tally              map[types.VoteChoice]uint64 `json:"tally"`
	Voters             map[string]types.VoteChoice `json:"voters"`
}

// AccountState holds a sender's social-recovery configuration (spec §3.1,
// §3.2 invariant #8).
type AccountState struct {
	Guardians         []string `json:"guardians"`
	RecoveryThreshold int      `json:"recoveryThreshold"`
}

// ParentRequest is a pending child→parent attachment request (spec §3.1).
type ParentRequest struct {
	Child       string `json:"child"`
	RequestedAt int64  `json:"requestedAt"`
}

// NodeMapEntry is the rebuildable node-graph view (spec §3.1).
type NodeMapEntry struct {
	NodeID             string   `json:"nodeId"`
	Name               string   `json:"name"`
	PublicKey          string   `json:"publicKey"`
	ParentIDs          []string `json:"parentIds"`
	ChildCount         int      `json:"childCount"`
	CreatedAt          int64    `json:"createdAt"`
	RecoveryPhraseHash string   `json:"recoveryPhraseHash,omitempty"`
}

// Clone returns a defensive deep copy, the same idiom the teacher's
// core/identity/alias.go AliasRecord.Clone() uses to keep callers from
// mutating shared derived state through a returned pointer.
func (e *NodeMapEntry) Clone() *NodeMapEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if len(e.ParentIDs) > 0 {
		clone.ParentIDs = append([]string(nil), e.ParentIDs...)
	}
	return &clone
}

// DerivedState is the full set of state folds over the block sequence
// (spec §3.1). It is rebuilt wholesale on genesis and on every
// ReplaceChain — nothing here is ever patched out of band (spec §3.3).
type DerivedState struct {
	NodeRoles           map[string]Role
	Institutions        map[string]*Institution
	PendingInstitutions map[string]*PendingInstitution
	SoulboundTokens      map[string][]*SoulboundToken
	ActiveProposals      map[string]*Proposal
	AccountStates        map[string]*AccountState
	PendingParentRequests map[string]map[string]*ParentRequest // parent -> child -> request
	KarmaBalances         map[string]*uint256.Int
	NodeMap               map[string]*NodeMapEntry
}

// newDerivedState returns an empty, fully-initialized state.
func newDerivedState() *DerivedState {
	return &DerivedState{
		NodeRoles:             make(map[string]Role),
		Institutions:          make(map[string]*Institution),
		PendingInstitutions:   make(map[string]*PendingInstitution),
		SoulboundTokens:       make(map[string][]*SoulboundToken),
		ActiveProposals:       make(map[string]*Proposal),
		AccountStates:         make(map[string]*AccountState),
		PendingParentRequests: make(map[string]map[string]*ParentRequest),
		KarmaBalances:         make(map[string]*uint256.Int),
		NodeMap:               make(map[string]*NodeMapEntry),
	}
}

// GetNodeRole derives a node's role purely from state (spec §4.2
// authorization helper). Unknown nodes return "" (no role).
func (s *DerivedState) GetNodeRole(nodeID string) Role {
	return s.NodeRoles[nodeID]
}

// IsVerifiedInstitution reports whether nodeID is a currently-verified,
// non-revoked institution (spec §3.2 invariant #5, #4.2 authorization
// helper).
func (s *DerivedState) IsVerifiedInstitution(nodeID string) bool {
	inst, ok := s.Institutions[nodeID]
	return ok && inst != nil && !inst.Revoked
}

// IsChildOf reports whether child's parentIds contains parent (spec §4.2
// authorization helper).
func (s *DerivedState) IsChildOf(child, parent string) bool {
	entry, ok := s.NodeMap[child]
	if !ok || entry == nil {
		return false
	}
	for _, p := range entry.ParentIDs {
		if p == parent {
			return true
		}
	}
	return false
}

// KarmaBalance returns a node's current Karma balance (zero if unknown).
func (s *DerivedState) KarmaBalance(nodeID string) *uint256.Int {
	if bal, ok := s.KarmaBalances[nodeID]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

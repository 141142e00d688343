// Package types defines the ledger's wire- and storage-level data model:
// the closed transaction tag set, block header/body, and checkpoints.
package types

import (
	"encoding/json"
)

// TxType is the closed set of transaction tags spec §3.1 enumerates. Unlike
// the teacher's open-ended TxType byte enum (core/types/transaction.go),
// this one is deliberately closed — the processor's unknown-type handling
// (spec §4.2) is a forward-compatibility contract for tags that don't exist
// yet on the wire, not an invitation to add arbitrary new ones here.
type TxType string

const (
	TxGenesis               TxType = "GENESIS"
	TxNodeJoin              TxType = "NODE_JOIN"
	TxNodeParentRequest     TxType = "NODE_PARENT_REQUEST"
	TxNodeParentUpdate      TxType = "NODE_PARENT_UPDATE"
	TxInstitutionRegister   TxType = "INSTITUTION_REGISTER"
	TxInstitutionVerify     TxType = "INSTITUTION_VERIFY"
	TxInstitutionRevoke     TxType = "INSTITUTION_REVOKE"
	TxSoulboundMint         TxType = "SOULBOUND_MINT"
	TxGovProposal           TxType = "GOV_PROPOSAL"
	TxVoteCast              TxType = "VOTE_CAST"
	TxSocialRecoveryUpdate  TxType = "SOCIAL_RECOVERY_UPDATE"
	TxKarmaEarn             TxType = "KARMA_EARN"
	TxKarmaTransfer         TxType = "KARMA_TRANSFER"
	TxKarmaUBI              TxType = "KARMA_UBI"
)

// SystemSigner is the literal sender marker carried by internally minted
// Karma events (KARMA_EARN, KARMA_UBI); such events have no Ed25519
// signature to verify, per spec §3.1.
const SystemSigner = "system"

// ParentUpdateAction enumerates NODE_PARENT_UPDATE's mutation kinds.
type ParentUpdateAction string

const (
	ParentActionAdd ParentUpdateAction = "ADD"
	ParentActionRemove ParentUpdateAction = "REMOVE"
	ParentActionSet ParentUpdateAction = "SET"
)

// VoteChoice enumerates VOTE_CAST's ballot values.
type VoteChoice string

const (
	VoteYes     VoteChoice = "YES"
	VoteNo      VoteChoice = "NO"
	VoteAbstain VoteChoice = "ABSTAIN"
)

// Transaction is a typed, signed record appended to a block body (spec
// §3.1). Payload is kept as raw JSON and decoded per-Type by the handler
// that owns that type — this avoids a sprawling one-struct-fits-all
// payload shape while keeping Transaction itself a single concrete type
// that (de)serializes uniformly for hashing and signing.
type Transaction struct {
	Type      TxType          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	NodeID    string          `json:"nodeId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Signature string          `json:"signature"`
}

// signingView is the exact field set and order that is hashed/signed,
// deliberately excluding Signature — the same "explicit struct instead of
// relying on map order" trick the teacher's Transaction.Hash() uses
// (core/types/transaction.go).
type signingView struct {
	Type      TxType          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	NodeID    string          `json:"nodeId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SigningBytes returns the canonical JSON bytes that Signature is computed
// over (spec §3.1/§6.1).
func (tx *Transaction) SigningBytes() ([]byte, error) {
	view := signingView{
		Type:      tx.Type,
		Timestamp: tx.Timestamp,
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		NodeID:    tx.NodeID,
		Payload:   tx.Payload,
	}
	return json.Marshal(view)
}

// IsSystemMinted reports whether tx carries the literal "system" signature
// marker instead of an Ed25519 signature.
func (tx *Transaction) IsSystemMinted() bool {
	return tx.Signature == SystemSigner
}

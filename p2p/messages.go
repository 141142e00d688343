// Package p2p implements the gossip/sync network protocol of spec §4.7:
// a framed, ordered, reliable byte stream per peer carrying JSON objects
// discriminated by a "type" field, a per-peer state machine, connection
// management with priority eviction, and application-level message
// queueing for parent attachment requests.
package p2p

import (
	"encoding/json"

	"glowmesh/core/types"
)

// MessageType is the closed discriminator carried by every framed object
// (spec §6.1's canonical wire format, §4.7's message table).
type MessageType string

const (
	MsgHello                MessageType = "HELLO"
	MsgSyncRequest          MessageType = "SYNC_REQUEST"
	MsgSyncResponse         MessageType = "SYNC_RESPONSE"
	MsgNewBlock             MessageType = "NEW_BLOCK"
	MsgHeaderSyncRequest    MessageType = "HEADER_SYNC_REQUEST"
	MsgHeaderSyncResponse   MessageType = "HEADER_SYNC_RESPONSE"
	MsgMerkleProofRequest   MessageType = "MERKLE_PROOF_REQUEST"
	MsgMerkleProofResponse  MessageType = "MERKLE_PROOF_RESPONSE"
	MsgHeartbeat            MessageType = "HEARTBEAT"
	MsgParentRequest        MessageType = "PARENT_REQUEST"
	MsgParentResponse       MessageType = "PARENT_RESPONSE"
)

// NodeType distinguishes full nodes (hold every block) from light clients
// (hold headers plus on-demand Merkle proofs, spec §4.9).
type NodeType string

const (
	NodeTypeFull  NodeType = "FULL"
	NodeTypeLight NodeType = "LIGHT"
)

// Envelope is the outer frame every message is wrapped in: a type tag
// plus a raw payload decoded per-type by protocol.go, the same
// discriminated-union shape core/types.Transaction uses for its payload.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload is exchanged on connect (spec §6.1).
type HelloPayload struct {
	NodeID          string   `json:"nodeId"`
	PublicKey       string   `json:"publicKey"` // base64 raw Ed25519 public key
	ChainLength     uint64   `json:"chainLength"`
	LatestHash      *string  `json:"latestHash"`
	ProtocolVersion int      `json:"protocolVersion"`
	NodeType        NodeType `json:"nodeType"`
	ChainEpoch      string   `json:"chainEpoch"`
	Nonce           string   `json:"nonce"` // hex, replay-guarded per sender node id
}

// SyncRequestPayload asks for blocks from FromIndex onward.
type SyncRequestPayload struct {
	FromIndex uint64 `json:"fromIndex"`
}

// SyncResponsePayload carries a full or partial ordered block list.
type SyncResponsePayload struct {
	Blocks []types.Block `json:"blocks"`
}

// NewBlockPayload announces a newly proposed block for gossip.
type NewBlockPayload struct {
	Block types.Block `json:"block"`
}

// HeaderSyncRequestPayload asks for a header range (light clients).
type HeaderSyncRequestPayload struct {
	FromIndex uint64 `json:"fromIndex"`
	ToIndex   uint64 `json:"toIndex"`
}

// HeaderSyncResponsePayload returns the requested header range.
type HeaderSyncResponsePayload struct {
	Headers []types.LightHeader `json:"headers"`
}

// MerkleProofRequestPayload asks for a named transaction's inclusion proof.
type MerkleProofRequestPayload struct {
	BlockIndex       uint64 `json:"blockIndex"`
	TransactionIndex int    `json:"transactionIndex"`
}

// MerkleProofResponsePayload carries the proof bundle spec §4.6 defines,
// using the same shape core/chain.TransactionProof produces.
type MerkleProofResponsePayload struct {
	BlockIndex       uint64              `json:"blockIndex"`
	BlockHash        string              `json:"blockHash"`
	Header           types.BlockHeader   `json:"header"`
	TransactionIndex int                 `json:"transactionIndex"`
	Transaction      types.Transaction   `json:"transaction"`
	Proof            []ProofStepWire     `json:"proof"`
	Found            bool                `json:"found"`
}

// ProofStepWire mirrors merkle.ProofStep for the wire, avoiding a direct
// dependency from the wire format onto the merkle package's internal type.
type ProofStepWire struct {
	Sibling string `json:"sibling"`
	Side    bool   `json:"side"`
}

// HeartbeatPayload is presence gossip (spec §4.7, §6.3's onPresence).
type HeartbeatPayload struct {
	IsOnline  bool     `json:"isOnline"`
	SeenNodes []string `json:"seenNodes,omitempty"`
}

// ParentRequestPayload is a child's application-level attachment ask.
type ParentRequestPayload struct {
	ChildID  string `json:"childId"`
	ParentID string `json:"parentId"`
}

// ParentResponsePayload is the parent's decision.
type ParentResponsePayload struct {
	ChildID  string `json:"childId"`
	ParentID string `json:"parentId"`
	Approved bool   `json:"approved"`
}

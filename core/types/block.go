package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// BlockHeader carries the fields spec §3.1 names. Hash is computed over the
// header the same way the teacher computes it (core/types/block.go):
// sha256(json.Marshal(header)), excluding the Hash field itself.
type BlockHeader struct {
	Index        uint64  `json:"index"`
	Timestamp    int64   `json:"timestamp"`
	PreviousHash *string `json:"previousHash"` // nil only for index 0
	MerkleRoot   string  `json:"merkleRoot"`
	Proposer     string  `json:"proposer"`
	Nonce        uint64  `json:"nonce"`
}

// Block pairs a header with its ordered transaction body and the header's
// computed hash.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
	Hash         string        `json:"hash"`
}

// ComputeHash returns hex(sha256(canonical(header))).
func (h BlockHeader) ComputeHash() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Finalize computes and assigns the block's hash from its header.
func (b *Block) Finalize() error {
	hash, err := b.Header.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = hash
	return nil
}

// VerifyHash reports whether the block's stored Hash matches a fresh
// recomputation over its header (spec invariant #2).
func (b *Block) VerifyHash() (bool, error) {
	want, err := b.Header.ComputeHash()
	if err != nil {
		return false, err
	}
	return want == b.Hash, nil
}

// LightHeader is the header-only persistence shape light clients store
// (spec §3.1 "Block header (light)").
type LightHeader struct {
	Header BlockHeader `json:"header"`
	Hash   string      `json:"hash"`
}

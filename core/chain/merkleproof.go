package chain

import (
	"errors"
	"fmt"

	"glowmesh/core/types"
	"glowmesh/merkle"
)

// ErrTransactionNotFound is returned when the requested transaction index
// does not exist within the named block.
var ErrTransactionNotFound = errors.New("chain: transaction not found")

// TransactionProof is the bundle spec §4.6 names: enough for a light
// client to verify a single transaction's inclusion in a block it already
// trusts the header of.
type TransactionProof struct {
	BlockIndex       uint64              `json:"blockIndex"`
	BlockHash        string              `json:"blockHash"`
	Header           types.BlockHeader   `json:"header"`
	TransactionIndex int                 `json:"transactionIndex"`
	Transaction      types.Transaction   `json:"transaction"`
	Proof            []merkle.ProofStep  `json:"proof"`
}

// ProveTransaction locates transactionIndex within blockIndex's body and
// returns its sibling-path Merkle proof (spec §4.6).
func (c *Chain) ProveTransaction(blockIndex uint64, transactionIndex int) (TransactionProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	block, ok := c.blockAtLocked(blockIndex)
	if !ok {
		return TransactionProof{}, fmt.Errorf("%w: block %d", ErrTransactionNotFound, blockIndex)
	}
	if transactionIndex < 0 || transactionIndex >= len(block.Transactions) {
		return TransactionProof{}, fmt.Errorf("%w: index %d in block %d", ErrTransactionNotFound, transactionIndex, blockIndex)
	}

	leaves := make([]string, len(block.Transactions))
	for i := range block.Transactions {
		txBytes, err := block.Transactions[i].SigningBytes()
		if err != nil {
			return TransactionProof{}, err
		}
		leaves[i] = merkle.LeafHash(txBytes)
	}
	tree := merkle.New(leaves)
	steps, ok := tree.Proof(transactionIndex)
	if !ok {
		return TransactionProof{}, fmt.Errorf("%w: index %d in block %d", ErrTransactionNotFound, transactionIndex, blockIndex)
	}

	return TransactionProof{
		BlockIndex:       blockIndex,
		BlockHash:        block.Hash,
		Header:           block.Header,
		TransactionIndex: transactionIndex,
		Transaction:      block.Transactions[transactionIndex],
		Proof:            steps,
	}, nil
}

// VerifyTransactionProof is the light-client-side check (spec §4.6,
// §4.9): reconstruct the root from the proof and compare against the
// header's declared merkleRoot carried inside the proof itself. Callers
// are responsible for having already validated that header chain
// (lightclient.Client does this) — this function only checks inclusion,
// not header trust.
func VerifyTransactionProof(proof TransactionProof) (bool, error) {
	txBytes, err := proof.Transaction.SigningBytes()
	if err != nil {
		return false, err
	}
	leafHash := merkle.LeafHash(txBytes)
	return merkle.VerifyProof(leafHash, proof.Proof, proof.Header.MerkleRoot), nil
}

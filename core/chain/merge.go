package chain

import (
	"encoding/json"
	"fmt"
	"time"

	"glowmesh/core/types"
	"glowmesh/merkle"
)

// MergeUniqueNodes implements spec §4.4: scan peerBlocks for NODE_JOIN
// events whose node id is not already in the local node map, and append
// reconstructed join blocks to the local tail — one NODE_JOIN transaction
// per new identity, each in its own single-transaction block so every
// donated identity gets its own provable Merkle proof. Returns the newly
// appended blocks so the caller can broadcast them to peers other than
// the donor (spec §4.4's "each such block is then broadcast").
//
// Applying this twice over the same peerBlocks is idempotent (spec §8
// testable property #9): the second pass finds every peer NODE_JOIN node
// id already present locally (including the ones the first pass just
// donated) and appends nothing.
func (c *Chain) MergeUniqueNodes(peerBlocks []types.Block, proposer string) ([]types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip, ok := c.tipLocked()
	if !ok {
		return nil, ErrEmptyChain
	}

	var donated []types.Block
	for _, block := range peerBlocks {
		for _, tx := range block.Transactions {
			if tx.Type != types.TxNodeJoin {
				continue
			}
			if _, exists := c.state.NodeMap[tx.NodeID]; exists {
				continue
			}
			rebuilt, err := reconstructJoin(tx, tip, proposer, c.state.NodeMap)
			if err != nil {
				return nil, fmt.Errorf("chain: reconstructing donated join: %w", err)
			}
			if err := c.applyLocked(rebuilt); err != nil {
				return nil, fmt.Errorf("chain: applying donated join: %w", err)
			}
			donated = append(donated, rebuilt)
			tip = rebuilt
		}
	}
	return donated, nil
}

func (c *Chain) tipLocked() (types.Block, bool) {
	if len(c.blocks) == 0 {
		return types.Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// reconstructJoin rebuilds a donated NODE_JOIN as a fresh single-transaction
// block atop tip, proposed by the receiving node itself (the donation is a
// local action, not an attestation from the original peer) with parentId
// cleared if it refers to a node unknown to the receiver (spec §4.4:
// "parentId cleared if it refers to an unknown node").
func reconstructJoin(original types.Transaction, tip types.Block, proposer string, localNodeMap map[string]*NodeMapEntry) (types.Block, error) {
	var payload types.NodeJoinPayload
	if err := json.Unmarshal(original.Payload, &payload); err != nil {
		return types.Block{}, err
	}
	if payload.ParentID != "" {
		if _, ok := localNodeMap[payload.ParentID]; !ok {
			payload.ParentID = ""
		}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return types.Block{}, err
	}

	// The transaction keeps original's Timestamp: Signature was computed
	// over original's SigningBytes, which include Timestamp, so changing it
	// here would invalidate the reused signature. The donated block's own
	// header gets a fresh timestamp below instead — that's what spec §4.4/
	// §8 scenario 7 mean by the donated block being "re-timestamped".
	tx := types.Transaction{
		Type:      types.TxNodeJoin,
		Timestamp: original.Timestamp,
		Sender:    original.Sender,
		NodeID:    original.NodeID,
		Payload:   payloadBytes,
		Signature: original.Signature,
	}

	leafBytes, err := tx.SigningBytes()
	if err != nil {
		return types.Block{}, err
	}
	merkleRoot := merkle.New([]string{merkle.LeafHash(leafBytes)}).Root()

	hashStr := tip.Hash
	block := types.Block{
		Header: types.BlockHeader{
			Index:        tip.Header.Index + 1,
			Timestamp:    time.Now().Unix(),
			PreviousHash: &hashStr,
			MerkleRoot:   merkleRoot,
			Proposer:     proposer,
		},
		Transactions: []types.Transaction{tx},
	}
	if err := block.Finalize(); err != nil {
		return types.Block{}, err
	}
	return block, nil
}

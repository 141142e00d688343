package chain

import (
	"fmt"

	"glowmesh/core/types"
	"glowmesh/merkle"
)

// validateStructure checks spec §3.2 invariant #1 (chain shape) and the
// index/previous-hash half of invariant #2, against the chain's current
// tip. It does not check the block's own hash — that is ComputeHash's job,
// called separately so HashMismatch and structural errors stay distinct
// per spec §7's taxonomy.
func validateStructure(tip *types.Block, candidate *types.Block) error {
	if tip == nil {
		if candidate.Header.Index != 0 {
			return fmt.Errorf("%w: genesis must have index 0, got %d", ErrIndexMismatch, candidate.Header.Index)
		}
		if candidate.Header.PreviousHash != nil {
			return fmt.Errorf("%w: genesis previousHash must be nil", ErrInvalidBlock)
		}
		return nil
	}
	if candidate.Header.Index != tip.Header.Index+1 {
		return fmt.Errorf("%w: expected index %d, got %d", ErrIndexMismatch, tip.Header.Index+1, candidate.Header.Index)
	}
	if candidate.Header.PreviousHash == nil || *candidate.Header.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: block %d previousHash does not match tip hash", ErrPreviousHashMismatch, candidate.Header.Index)
	}
	return nil
}

// verifyMerkleRoot recomputes the block body's Merkle root from its
// transactions and compares it to the header's declared root (spec
// invariant #2's body-hash half).
func verifyMerkleRoot(block *types.Block) (bool, error) {
	leaves := make([]string, len(block.Transactions))
	for i := range block.Transactions {
		txBytes, err := block.Transactions[i].SigningBytes()
		if err != nil {
			return false, err
		}
		leaves[i] = merkle.LeafHash(txBytes)
	}
	tree := merkle.New(leaves)
	return tree.Root() == block.Header.MerkleRoot, nil
}

// verifyBlockHash recomputes and compares the block's own hash (spec §7's
// HashMismatch).
func verifyBlockHash(block *types.Block) (bool, error) {
	return block.VerifyHash()
}

// validateFullSequence re-derives and checks invariant #1/#2 across an
// entire candidate sequence from scratch, used by ReplaceChain (spec §4.3
// step 2 "Validate the full chain").
func validateFullSequence(blocks []types.Block) error {
	var tip *types.Block
	for i := range blocks {
		b := blocks[i]
		if err := validateStructure(tip, &b); err != nil {
			return err
		}
		ok, err := verifyBlockHash(&b)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: block %d", ErrHashMismatch, b.Header.Index)
		}
		ok, err = verifyMerkleRoot(&b)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: block %d merkle root mismatch", ErrInvalidBlock, b.Header.Index)
		}
		tip = &blocks[i]
	}
	return nil
}

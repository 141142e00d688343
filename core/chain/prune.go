package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"glowmesh/core/types"
	"glowmesh/storage"
)

// Prune implements spec §4.5: keep the last pruneKeepBlocks blocks,
// producing a checkpoint for each dropped block that lands on a
// checkpointInterval boundary, persisting the checkpoints, and deleting
// the pruned prefix from persistent block storage. In-memory blocks are
// trimmed the same way so Chain's own view matches what Store holds.
//
// Blocks are immutable once appended (spec §3.3): pruning only removes a
// prefix, it never edits a surviving block's contents, and indices are
// preserved (BlockAt still answers by absolute index, see chain.go's
// blockAtLocked).
func (c *Chain) Prune(ctx context.Context, store storage.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if uint64(len(c.blocks)) <= c.pruneKeepBlocks {
		return nil
	}
	dropCount := uint64(len(c.blocks)) - c.pruneKeepBlocks
	dropped := c.blocks[:dropCount]
	keep := c.blocks[dropCount:]

	var lastCheckpoint *types.Checkpoint
	for _, block := range dropped {
		if c.checkpointInterval == 0 || block.Header.Index%c.checkpointInterval != 0 {
			continue
		}
		checkpoint := types.NewCheckpoint(block)
		checkpointJSON, err := json.Marshal(checkpoint)
		if err != nil {
			return fmt.Errorf("chain: marshaling checkpoint: %w", err)
		}
		if err := store.PutCheckpoint(ctx, checkpoint.Index, checkpointJSON); err != nil {
			return fmt.Errorf("chain: persisting checkpoint: %w", err)
		}
		c.checkpoints = append(c.checkpoints, checkpoint)
		cp := checkpoint
		lastCheckpoint = &cp
	}

	if lastCheckpoint == nil && len(c.checkpoints) > 0 {
		lastCheckpoint = &c.checkpoints[len(c.checkpoints)-1]
	}
	if lastCheckpoint != nil && len(keep) > 0 {
		survivorPrev := ""
		if keep[0].Header.PreviousHash != nil {
			survivorPrev = *keep[0].Header.PreviousHash
		}
		if survivorPrev != lastCheckpoint.Hash {
			return fmt.Errorf("%w: first surviving block's previousHash does not equal last checkpoint hash", ErrInvalidBlock)
		}
	}

	deleteBefore := dropped[len(dropped)-1].Header.Index + 1
	if len(keep) > 0 {
		deleteBefore = keep[0].Header.Index
	}
	if err := store.DeleteBlocksBefore(ctx, deleteBefore); err != nil {
		return fmt.Errorf("chain: deleting pruned blocks: %w", err)
	}
	c.blocks = append([]types.Block(nil), keep...)
	return nil
}

// Checkpoints returns a defensive copy of the checkpoints produced so far.
func (c *Chain) Checkpoints() []types.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out
}

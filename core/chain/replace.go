package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"glowmesh/core/types"
)

// ReplaceChain implements spec §4.3: reconstruct the candidate sequence
// in isolation, validate it in full, and — only if accepted — reset
// derived state to empty and reprocess every transaction in order. No
// incremental patching ever happens here or anywhere else in this
// package (spec §3.3).
func (c *Chain) ReplaceChain(candidate []types.Block) error {
	return c.ReplaceChainContext(context.Background(), candidate)
}

// ReplaceChainContext is ReplaceChain with a caller-supplied context,
// traced as "chain.replace" so a full-chain sync round-trip's replay cost
// is visible alongside the SYNC_RESPONSE span that triggered it.
func (c *Chain) ReplaceChainContext(ctx context.Context, candidate []types.Block) error {
	_, span := c.tracer.Start(ctx, "chain.replace", trace.WithAttributes(
		attribute.Int("candidate.blocks", len(candidate)),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.replaceChainLocked(candidate); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Chain) replaceChainLocked(candidate []types.Block) error {
	if len(candidate) == 0 {
		return fmt.Errorf("%w: candidate chain is empty", ErrCandidateRejected)
	}
	if err := validateFullSequence(candidate); err != nil {
		return fmt.Errorf("%w: %v", ErrCandidateRejected, err)
	}
	if len(c.blocks) > 0 {
		accept, err := decideReplacement(c.blocks, candidate)
		if err != nil {
			return err
		}
		if !accept {
			return fmt.Errorf("%w: local chain wins tiebreaker", ErrCandidateRejected)
		}
	}

	c.state = newDerivedState()
	c.blocks = nil
	nodeMap, firstJoinNodeID := buildNodeMap(candidate)
	c.state.NodeMap = nodeMap
	for _, block := range candidate {
		for txIdx, tx := range block.Transactions {
			c.dispatch(block.Header.Index, txIdx, tx, firstJoinNodeID)
		}
	}
	c.blocks = append([]types.Block(nil), candidate...)
	c.metrics.blockApplied()
	return nil
}

// decideReplacement reports whether candidate should replace local (spec
// §4.3's "given a candidate sequence from a peer" decision, which also
// covers the equal-length tiebreaker spelled out right after it).
func decideReplacement(local, candidate []types.Block) (bool, error) {
	if len(candidate) > len(local) {
		if genesisCompatible(local[0], candidate[0]) {
			return true, nil
		}
		return false, fmt.Errorf("%w: divergent genesis", ErrCandidateRejected)
	}
	if len(candidate) < len(local) {
		return false, nil
	}
	if local[0].Hash == candidate[0].Hash {
		return false, nil // identical history, nothing to replace
	}
	return tiebreakGenesis(local[0], candidate[0])
}

// genesisCompatible reports whether two genesis blocks are the same
// history (identical hash) — the only case a longer candidate is accepted
// without running the tiebreaker.
func genesisCompatible(localGenesis, candidateGenesis types.Block) bool {
	return localGenesis.Hash == candidateGenesis.Hash
}

// tiebreakGenesis implements spec §4.3's equal-length tiebreaker: compare
// genesis uniqueness markers (presence wins over absence — a candidate
// with no marker while local has one is "clearly older" and rejected),
// then genesis timestamp (earlier wins), then genesis hash
// lexicographically (smaller wins). This is SPEC_FULL.md §6 decision #4.
func tiebreakGenesis(localGenesis, candidateGenesis types.Block) (bool, error) {
	if localGenesis.Hash == candidateGenesis.Hash {
		return false, nil
	}
	localMarker, err := genesisUniqueMarker(localGenesis)
	if err != nil {
		return false, err
	}
	candidateMarker, err := genesisUniqueMarker(candidateGenesis)
	if err != nil {
		return false, err
	}
	if localMarker != "" && candidateMarker == "" {
		return false, fmt.Errorf("%w: candidate genesis has no unique marker", ErrCandidateRejected)
	}
	if candidateMarker != "" && localMarker == "" {
		return true, nil // local is clearly older; marker presence dominates the tiebreaker.
	}
	if localGenesis.Header.Timestamp != candidateGenesis.Header.Timestamp {
		return candidateGenesis.Header.Timestamp < localGenesis.Header.Timestamp, nil
	}
	return strings.Compare(candidateGenesis.Hash, localGenesis.Hash) < 0, nil
}

func genesisUniqueMarker(genesis types.Block) (string, error) {
	if len(genesis.Transactions) == 0 {
		return "", nil
	}
	tx := genesis.Transactions[0]
	if tx.Type != types.TxGenesis {
		return "", nil
	}
	if len(tx.Payload) == 0 {
		return "", nil
	}
	var payload types.GenesisPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		return "", fmt.Errorf("chain: malformed genesis payload: %w", err)
	}
	return payload.UniqueMarker, nil
}

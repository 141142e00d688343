package chain

import (
	"encoding/json"
	"sort"

	"glowmesh/core/types"
)

// eventRef locates a transaction within the chain for deterministic
// tie-breaking among same-timestamp NODE_PARENT_UPDATE events (see
// SPEC_FULL.md §6 Open Question decision #1).
type eventRef struct {
	blockIndex uint64
	txIndex    int
	tx         types.Transaction
}

// buildNodeMap is the pure function spec §4.2 describes: fold NODE_JOIN and
// NODE_PARENT_UPDATE events from the full ordered block sequence into a
// node-graph view. It never mutates incremental state; callers rebuild it
// wholesale after every Apply/ReplaceChain (spec §3.3, §9), which is what
// makes the invariants here trivially provable by induction on the input
// sequence rather than on some mutable accumulator.
//
// firstJoinNodeID is the nodeId carried by the very first NODE_JOIN
// transaction in chain order (spec invariant #3: "the first NODE_JOIN ever
// applied receives role ROOT"), independent of whether that id is later
// duplicated.
func buildNodeMap(blocks []types.Block) (nodeMap map[string]*NodeMapEntry, firstJoinNodeID string) {
	nodeMap = make(map[string]*NodeMapEntry)
	var parentUpdates []eventRef
	joined := false

	for _, block := range blocks {
		for txIdx, tx := range block.Transactions {
			switch tx.Type {
			case types.TxNodeJoin:
				var payload types.NodeJoinPayload
				if err := json.Unmarshal(tx.Payload, &payload); err != nil {
					continue
				}
				if !joined {
					firstJoinNodeID = tx.NodeID
					joined = true
				}
				// spec invariant #7: duplicate joins are ignored; only the
				// first chronological NODE_JOIN for a given node id
				// establishes it.
				if _, exists := nodeMap[tx.NodeID]; exists {
					continue
				}
				entry := &NodeMapEntry{
					NodeID:             tx.NodeID,
					Name:               payload.Name,
					PublicKey:          payload.PublicKey,
					CreatedAt:          tx.Timestamp,
					RecoveryPhraseHash: payload.RecoveryPhraseHash,
				}
				if payload.ParentID != "" {
					entry.ParentIDs = []string{payload.ParentID}
				}
				nodeMap[tx.NodeID] = entry
			case types.TxNodeParentUpdate:
				parentUpdates = append(parentUpdates, eventRef{blockIndex: block.Header.Index, txIndex: txIdx, tx: tx})
			}
		}
	}

	// Open Question decision #1: sort NODE_PARENT_UPDATE events by
	// timestamp (spec.md's documented rule), breaking ties by chain order
	// (block index, then tx index) so equal-timestamp events never produce
	// a nondeterministic fold.
	sort.SliceStable(parentUpdates, func(i, j int) bool {
		a, b := parentUpdates[i], parentUpdates[j]
		if a.tx.Timestamp != b.tx.Timestamp {
			return a.tx.Timestamp < b.tx.Timestamp
		}
		if a.blockIndex != b.blockIndex {
			return a.blockIndex < b.blockIndex
		}
		return a.txIndex < b.txIndex
	})

	for _, ref := range parentUpdates {
		var payload types.NodeParentUpdatePayload
		if err := json.Unmarshal(ref.tx.Payload, &payload); err != nil {
			continue
		}
		entry, ok := nodeMap[ref.tx.NodeID]
		if !ok || entry == nil {
			continue
		}
		switch payload.Action {
		case types.ParentActionAdd:
			if payload.ParentID == "" {
				continue
			}
			if !containsString(entry.ParentIDs, payload.ParentID) {
				entry.ParentIDs = append(entry.ParentIDs, payload.ParentID)
			}
		case types.ParentActionRemove:
			entry.ParentIDs = removeString(entry.ParentIDs, payload.ParentID)
		case types.ParentActionSet:
			if payload.ParentID == "" {
				entry.ParentIDs = nil
			} else {
				entry.ParentIDs = []string{payload.ParentID}
			}
		}
	}

	for _, entry := range nodeMap {
		entry.ChildCount = 0
	}
	for _, entry := range nodeMap {
		for _, parentID := range entry.ParentIDs {
			if parent, ok := nodeMap[parentID]; ok {
				parent.ChildCount++
			}
		}
	}

	return nodeMap, firstJoinNodeID
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

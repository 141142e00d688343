package types

// Checkpoint is the compact summary of a pruned block (spec §3.1, §4.5).
type Checkpoint struct {
	Index        uint64 `json:"index"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
	Timestamp    int64  `json:"timestamp"`
	Proposer     string `json:"proposer"`
}

// NewCheckpoint builds a checkpoint from a finalized block.
func NewCheckpoint(b Block) Checkpoint {
	previous := ""
	if b.Header.PreviousHash != nil {
		previous = *b.Header.PreviousHash
	}
	return Checkpoint{
		Index:        b.Header.Index,
		Hash:         b.Hash,
		PreviousHash: previous,
		Timestamp:    b.Header.Timestamp,
		Proposer:     b.Header.Proposer,
	}
}

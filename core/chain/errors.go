package chain

import "errors"

// Structural errors (spec §7): fatal for the offending block, never mutate
// the chain. Authorization/handler failures are deliberately NOT part of
// this taxonomy — they are logged and no-op per spec §4.2/§7, never
// returned from Apply.
var (
	ErrInvalidBlock         = errors.New("chain: invalid block")
	ErrHashMismatch         = errors.New("chain: block hash mismatch")
	ErrPreviousHashMismatch = errors.New("chain: previous hash mismatch")
	ErrIndexMismatch        = errors.New("chain: index mismatch")

	// ErrCandidateRejected is returned by ReplaceChain when a candidate
	// sequence fails structural validation or the divergent-genesis check.
	ErrCandidateRejected = errors.New("chain: candidate chain rejected")

	// ErrEmptyChain guards operations that require at least a genesis block.
	ErrEmptyChain = errors.New("chain: empty chain")
)

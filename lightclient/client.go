// Package lightclient implements spec §4.9: a header-only view of the
// chain that trusts transaction inclusion only through Merkle proofs
// rather than holding full block bodies.
package lightclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/storage"
)

// ErrHeaderNotFound is returned when no header is held for the requested index.
var ErrHeaderNotFound = errors.New("lightclient: header not found")

// ErrHeaderChainBroken is returned when an appended header's previousHash
// does not match the last held header's hash.
var ErrHeaderChainBroken = errors.New("lightclient: header chain broken")

// Client holds a verified header chain and answers Merkle-proof-backed
// transaction queries without ever storing full block bodies.
type Client struct {
	mu      sync.Mutex
	headers []types.LightHeader
	store   storage.Store
}

// New builds an empty light client backed by store for header persistence.
func New(store storage.Store) *Client {
	return &Client{store: store}
}

// LoadFromStore rehydrates the header chain from persisted headers.
func (c *Client) LoadFromStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := uint64(0); ; i++ {
		raw, err := c.store.GetHeader(ctx, i)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lightclient: loading header %d: %w", i, err)
		}
		var h types.LightHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return err
		}
		c.headers = append(c.headers, h)
	}
}

// AppendHeader validates and appends a single header (spec §4.9: the
// light client validates the header chain itself, independent of any
// full-block validation a peer might also be doing).
func (c *Client) AppendHeader(ctx context.Context, h types.LightHeader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	computed, err := h.Header.ComputeHash()
	if err != nil {
		return err
	}
	if computed != h.Hash {
		return fmt.Errorf("%w: header %d hash mismatch", ErrHeaderChainBroken, h.Header.Index)
	}
	if len(c.headers) == 0 {
		if h.Header.Index != 0 || h.Header.PreviousHash != nil {
			return fmt.Errorf("%w: first header must be genesis", ErrHeaderChainBroken)
		}
	} else {
		tip := c.headers[len(c.headers)-1]
		if h.Header.Index != tip.Header.Index+1 {
			return fmt.Errorf("%w: expected index %d, got %d", ErrHeaderChainBroken, tip.Header.Index+1, h.Header.Index)
		}
		if h.Header.PreviousHash == nil || *h.Header.PreviousHash != tip.Hash {
			return fmt.Errorf("%w: header %d previousHash mismatch", ErrHeaderChainBroken, h.Header.Index)
		}
	}

	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := c.store.PutHeader(ctx, h.Header.Index, raw); err != nil {
		return err
	}
	c.headers = append(c.headers, h)
	return nil
}

// HeaderAt returns the header for index, if held.
func (c *Client) HeaderAt(index uint64) (types.LightHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 {
		return types.LightHeader{}, false
	}
	base := c.headers[0].Header.Index
	if index < base || index-base >= uint64(len(c.headers)) {
		return types.LightHeader{}, false
	}
	return c.headers[index-base], true
}

// Tip returns the most recently held header.
func (c *Client) Tip() (types.LightHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 {
		return types.LightHeader{}, false
	}
	return c.headers[len(c.headers)-1], true
}

// VerifyTransaction checks proof against the header this client already
// holds and trusts for proof.BlockIndex (spec §4.6, §4.9): an absent
// header or a root mismatch is a rejection.
func (c *Client) VerifyTransaction(proof chain.TransactionProof) (bool, error) {
	held, ok := c.HeaderAt(proof.BlockIndex)
	if !ok {
		return false, fmt.Errorf("%w: block %d", ErrHeaderNotFound, proof.BlockIndex)
	}
	if held.Hash != proof.BlockHash || held.Header.MerkleRoot != proof.Header.MerkleRoot {
		return false, nil
	}
	return chain.VerifyTransactionProof(proof)
}

package crypto

import (
	"context"
	"encoding/json"
	"fmt"

	"glowmesh/storage"
)

// wrappedKey is the on-disk representation of a node's key pair, the
// "private key bytes" store.keys object store record spec §6.2 names.
type wrappedKey struct {
	NodeID     string `json:"nodeId"`
	PrivateKey []byte `json:"privateKey"`
	PublicKey  []byte `json:"publicKey"`
}

// SaveKeyPair persists priv into the store's keys object store, keyed by the
// derived node id, generalizing the teacher's SaveToKeystore file-based
// pattern (crypto/keystore.go) onto the spec's Store abstraction.
func SaveKeyPair(ctx context.Context, store storage.Store, priv *PrivateKey) error {
	if priv == nil {
		return fmt.Errorf("crypto: nil private key")
	}
	nodeID := priv.Public().NodeID()
	wrapped := wrappedKey{
		NodeID:     nodeID,
		PrivateKey: priv.Bytes(),
		PublicKey:  priv.Public().Bytes(),
	}
	blob, err := json.Marshal(wrapped)
	if err != nil {
		return err
	}
	return store.PutKey(ctx, nodeID, blob)
}

// LoadKeyPair restores a previously saved key pair by node id.
func LoadKeyPair(ctx context.Context, store storage.Store, nodeID string) (*PrivateKey, error) {
	blob, err := store.GetKey(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	var wrapped wrappedKey
	if err := json.Unmarshal(blob, &wrapped); err != nil {
		return nil, fmt.Errorf("crypto: decode wrapped key: %w", err)
	}
	return NewPrivateKeyFromBytes(wrapped.PrivateKey)
}

// LoadOrCreateKeyPair restores the first persisted key pair it finds under
// any of candidateNodeIDs, or generates and persists a fresh one if none
// exists — the "created on first run or restored" lifecycle spec §3.3
// describes for a node's identity.
func LoadOrCreateKeyPair(ctx context.Context, store storage.Store, candidateNodeIDs ...string) (*PrivateKey, error) {
	for _, id := range candidateNodeIDs {
		if priv, err := LoadKeyPair(ctx, store, id); err == nil {
			return priv, nil
		} else if err != storage.ErrNotFound {
			return nil, err
		}
	}
	priv, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := SaveKeyPair(ctx, store, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// RestoreFromMnemonic validates phrase against expectedHash and, if valid,
// imports the supplied private key bytes and persists them. Recovery never
// attempts to reconstruct a private key from the phrase itself — the phrase
// is a verification artifact, not a seed (spec §4.1) — callers must already
// hold the key material (e.g. from an offline backup) and are only using the
// phrase to confirm it is the right one.
func RestoreFromMnemonic(ctx context.Context, store storage.Store, phrase string, expectedHash [32]byte, privateKeyBytes []byte) (*PrivateKey, error) {
	if !VerifyPhrase(phrase, expectedHash) {
		return nil, fmt.Errorf("crypto: mnemonic verification failed")
	}
	priv, err := NewPrivateKeyFromBytes(privateKeyBytes)
	if err != nil {
		return nil, err
	}
	if err := SaveKeyPair(ctx, store, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// Package crypto provides the Ed25519 identity primitives the ledger uses to
// name nodes and authenticate every transaction and block.
package crypto

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// NodeIDPrefix is prepended to every derived node identifier.
const NodeIDPrefix = "node_"

// nodeIDHashLen is the number of hex characters (8 raw bytes) kept from the
// public key's SHA-256 digest.
const nodeIDHashLen = 16

var (
	// ErrInvalidSignature is returned by Verify when a signature fails to
	// validate against the supplied payload and public key.
	ErrInvalidSignature = errors.New("crypto: invalid signature")
	// ErrInvalidPublicKey is returned when a public key is the wrong length.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key length")
	// ErrInvalidPrivateKey is returned when a private key is the wrong length.
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key length")
)

// PublicKey wraps a raw Ed25519 public key.
type PublicKey struct {
	raw ed25519.PublicKey
}

// PrivateKey wraps a raw Ed25519 private key. The key never leaves process
// memory in unexported form; callers persist it only through Store-backed
// keystore wrapping (see keystore.go).
type PrivateKey struct {
	raw ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (*PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	_ = pub
	return &PrivateKey{raw: priv}, nil
}

// NewPrivateKeyFromBytes reconstructs a private key from its raw 64-byte
// Ed25519 seed+public-key encoding.
func NewPrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return &PrivateKey{raw: ed25519.PrivateKey(cp)}, nil
}

// NewPublicKeyFromBytes reconstructs a public key from its raw 32-byte
// Ed25519 encoding.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return &PublicKey{raw: ed25519.PublicKey(cp)}, nil
}

// Bytes returns the raw private key bytes (seed || public key).
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Public derives the matching public key.
func (k *PrivateKey) Public() *PublicKey {
	pub := k.raw.Public().(ed25519.PublicKey)
	return &PublicKey{raw: pub}
}

// Sign signs canonical payload bytes, returning a detached 64-byte signature.
func (k *PrivateKey) Sign(payload []byte) []byte {
	return ed25519.Sign(k.raw, payload)
}

// Bytes returns the raw public key bytes.
func (k *PublicKey) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Base64 returns the base64 (standard) encoding of the raw public key, the
// wire representation used by the HELLO message (spec §6.1).
func (k *PublicKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k.raw)
}

// PublicKeyFromBase64 decodes the HELLO wire representation.
func PublicKeyFromBase64(s string) (*PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode public key: %w", err)
	}
	return NewPublicKeyFromBytes(raw)
}

// NodeID derives the node identifier from a public key:
// "node_" + hex(SHA-256(raw_public_key))[0:16].
func (k *PublicKey) NodeID() string {
	return NodeIDFromBytes(k.raw)
}

// NodeIDFromBytes derives a node id directly from raw public key bytes.
func NodeIDFromBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return NodeIDPrefix + hex.EncodeToString(sum[:])[:nodeIDHashLen]
}

// Verify checks a detached Ed25519 signature over payload, constant-time by
// virtue of the standard library implementation.
func Verify(pub *PublicKey, payload, signature []byte) bool {
	if pub == nil {
		return false
	}
	return ed25519.Verify(pub.raw, payload, signature)
}

// VerifyBytes is a convenience wrapper over raw public key bytes.
func VerifyBytes(pubBytes, payload, signature []byte) bool {
	if len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), payload, signature)
}

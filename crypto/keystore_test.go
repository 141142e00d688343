package crypto

import (
	"context"
	"testing"

	"glowmesh/storage"
)

func TestSaveAndLoadKeyPair(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	defer store.Close()

	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := SaveKeyPair(ctx, store, priv); err != nil {
		t.Fatalf("SaveKeyPair: %v", err)
	}

	nodeID := priv.Public().NodeID()
	restored, err := LoadKeyPair(ctx, store, nodeID)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if restored.Public().NodeID() != nodeID {
		t.Fatalf("restored node id = %q, want %q", restored.Public().NodeID(), nodeID)
	}
}

func TestLoadOrCreateKeyPairGeneratesOnFirstRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	defer store.Close()

	priv, err := LoadOrCreateKeyPair(ctx, store, "node_doesnotexist")
	if err != nil {
		t.Fatalf("LoadOrCreateKeyPair: %v", err)
	}

	again, err := LoadOrCreateKeyPair(ctx, store, priv.Public().NodeID())
	if err != nil {
		t.Fatalf("LoadOrCreateKeyPair (second run): %v", err)
	}
	if again.Public().NodeID() != priv.Public().NodeID() {
		t.Fatal("LoadOrCreateKeyPair should restore the persisted key rather than minting a new one")
	}
}

func TestRestoreFromMnemonicRejectsBadPhrase(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	defer store.Close()

	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if _, err := RestoreFromMnemonic(ctx, store, "not a real recovery phrase", HashPhrase("something else"), priv.Bytes()); err == nil {
		t.Fatal("RestoreFromMnemonic must reject a phrase that does not match the expected hash")
	}
}

func TestRestoreFromMnemonicAcceptsMatchingPhrase(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	defer store.Close()

	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	phrase, err := GeneratePhrase(priv.Bytes())
	if err != nil {
		t.Fatalf("GeneratePhrase: %v", err)
	}
	restored, err := RestoreFromMnemonic(ctx, store, phrase, HashPhrase(phrase), priv.Bytes())
	if err != nil {
		t.Fatalf("RestoreFromMnemonic: %v", err)
	}
	if restored.Public().NodeID() != priv.Public().NodeID() {
		t.Fatal("restored key does not match original")
	}
}

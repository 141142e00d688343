package config

import (
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowmesh.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("ListenAddress = %s, want %s", cfg.ListenAddress, defaultListenAddress)
	}
	if cfg.NodeKey == "" {
		t.Fatal("expected a generated NodeKey")
	}
	if _, err := hex.DecodeString(cfg.NodeKey); err != nil {
		t.Fatalf("NodeKey is not valid hex: %v", err)
	}
}

func TestLoadPersistsGeneratedKeyAcrossReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowmesh.toml")
	first, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first.NodeKey != second.NodeKey {
		t.Fatal("expected the node key to persist across reloads rather than regenerate")
	}
}

func TestLoadSelfHealsMissingKeyInExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowmesh.toml")
	if err := save(path, &Config{ListenAddress: ":9999"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("ListenAddress = %s, want :9999 (existing value preserved)", cfg.ListenAddress)
	}
	if cfg.NodeKey == "" {
		t.Fatal("expected Load to self-heal a missing NodeKey")
	}
	if cfg.DataDir != defaultDataDir {
		t.Fatalf("DataDir = %s, want default applied", cfg.DataDir)
	}
}

func TestPrivateKeyRoundTripsFromHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glowmesh.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	priv, err := cfg.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if hex.EncodeToString(priv.Bytes()) != cfg.NodeKey {
		t.Fatal("PrivateKey() did not round-trip NodeKey's bytes")
	}
}

func TestPrivateKeyRejectsInvalidHex(t *testing.T) {
	cfg := &Config{NodeKey: "not-hex"}
	if _, err := cfg.PrivateKey(); err == nil {
		t.Fatal("expected an error decoding invalid hex")
	}
}

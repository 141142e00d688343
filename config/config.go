package config

import (
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"glowmesh/crypto"
)

// Config is the daemon's on-disk configuration (spec §6.4's constants
// double as its defaults), loaded the same TOML-round-trip-with-
// self-healing-defaults way the teacher's config.Load does.
type Config struct {
	ListenAddress      string   `toml:"ListenAddress"`
	ReadModelAddress   string   `toml:"ReadModelAddress"`
	DataDir            string   `toml:"DataDir"`
	NodeKey            string   `toml:"NodeKey"` // hex-encoded Ed25519 private key
	NodeType           string   `toml:"NodeType"` // FULL or LIGHT
	BootstrapPeers     []string `toml:"BootstrapPeers"`
	PruneKeepBlocks    uint64   `toml:"PruneKeepBlocks"`
	CheckpointInterval uint64   `toml:"CheckpointInterval"`
	LogFile            string   `toml:"LogFile"`

	// SeedsRegistryFile optionally names a JSON file holding a signed
	// network.seeds registry (p2p/seeds.Registry) resolved at startup to
	// discover bootstrap peers beyond the static BootstrapPeers list. Left
	// empty, DNS seed discovery is skipped entirely.
	SeedsRegistryFile string `toml:"SeedsRegistryFile"`
	SeedsDNSServers   []string `toml:"SeedsDNSServers"`

	AuthEnabled    bool   `toml:"AuthEnabled"`
	AuthHMACSecret string `toml:"AuthHMACSecret"`
	AuthIssuer     string `toml:"AuthIssuer"`
}

const (
	defaultListenAddress    = ":6001"
	defaultReadModelAddress = ":8080"
	defaultDataDir          = "./glowmesh-data"
	defaultNodeType         = "FULL"
	defaultPruneKeepBlocks  = 1000
	defaultCheckpointInterval = 100
)

// Load reads path, self-healing a missing node key and writing the file
// back (spec §4.1: a node's identity is durable, not regenerated per run).
// A wholly missing file is replaced with a fresh default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if cfg.NodeKey == "" {
		key, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		cfg.NodeKey = hex.EncodeToString(key.Bytes())
		if err := save(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.ReadModelAddress == "" {
		cfg.ReadModelAddress = defaultReadModelAddress
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.NodeType == "" {
		cfg.NodeType = defaultNodeType
	}
	if cfg.PruneKeepBlocks == 0 {
		cfg.PruneKeepBlocks = defaultPruneKeepBlocks
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}
	if cfg.BootstrapPeers == nil {
		cfg.BootstrapPeers = []string{}
	}
}

// createDefault writes a fresh configuration file with a newly generated
// node key and returns it.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress:      defaultListenAddress,
		ReadModelAddress:   defaultReadModelAddress,
		DataDir:            defaultDataDir,
		NodeKey:            hex.EncodeToString(key.Bytes()),
		NodeType:           defaultNodeType,
		BootstrapPeers:     []string{},
		PruneKeepBlocks:    defaultPruneKeepBlocks,
		CheckpointInterval: defaultCheckpointInterval,
	}
	if err := save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// PrivateKey decodes NodeKey into a usable Ed25519 private key.
func (c *Config) PrivateKey() (*crypto.PrivateKey, error) {
	raw, err := hex.DecodeString(c.NodeKey)
	if err != nil {
		return nil, err
	}
	return crypto.NewPrivateKeyFromBytes(raw)
}

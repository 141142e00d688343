package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"glowmesh/crypto"
)

// runKeygen generates a fresh node identity, persists it to the data
// directory's key store, and prints the one-time mnemonic phrase an
// operator must write down for later recovery (spec §4.1).
func runKeygen(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "node data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveKeyPair(ctx, store, priv); err != nil {
		return fmt.Errorf("save key: %w", err)
	}

	phrase, err := crypto.GeneratePhrase(priv.Bytes())
	if err != nil {
		return fmt.Errorf("derive mnemonic: %w", err)
	}
	phraseHash := crypto.HashPhraseHex(phrase)

	fmt.Printf("Node ID:         %s\n", priv.Public().NodeID())
	fmt.Printf("Private key:     %s\n", hex.EncodeToString(priv.Bytes()))
	fmt.Printf("Recovery phrase: %s\n", phrase)
	fmt.Printf("Phrase hash:     %s\n", phraseHash)
	fmt.Println()
	fmt.Println("Write the recovery phrase down and store it offline. A NODE_JOIN")
	fmt.Println("transaction carrying the phrase hash (not the phrase) must be")
	fmt.Println("submitted so a later `ledgerctl recover` can verify against it.")

	logger.Info("keygen complete", slog.String("nodeId", priv.Public().NodeID()))
	return nil
}

// runRecover restores a node identity from an offline private-key backup,
// verified against the mnemonic hash already recorded in that node's
// NODE_JOIN entry. The phrase is never used to derive the key itself
// (crypto.RestoreFromMnemonic's doc comment) — it only proves the operator
// holds the right backup before it gets persisted back into the key store.
func runRecover(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "node data directory")
	nodeID := fs.String("node", "", "node id whose recovery phrase hash to verify against")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nodeID == "" {
		return fmt.Errorf("--node is required")
	}

	store, err := openStore(*dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := loadChain(ctx, store, logger)
	if err != nil {
		return err
	}
	entry, ok := c.State().NodeMap[*nodeID]
	if !ok || entry == nil {
		return fmt.Errorf("unknown node id %q", *nodeID)
	}
	if entry.RecoveryPhraseHash == "" {
		return fmt.Errorf("node %q has no recorded recovery phrase hash", *nodeID)
	}
	expectedHash, err := hex.DecodeString(entry.RecoveryPhraseHash)
	if err != nil || len(expectedHash) != 32 {
		return fmt.Errorf("node %q has a malformed recovery phrase hash", *nodeID)
	}
	var hashArray [32]byte
	copy(hashArray[:], expectedHash)

	privHex, err := readSecret("Enter backed-up private key (hex): ")
	if err != nil {
		return err
	}
	privBytes, err := hex.DecodeString(privHex)
	if err != nil {
		return fmt.Errorf("decode private key: %w", err)
	}

	phrase, err := readSecret("Enter recovery phrase: ")
	if err != nil {
		return err
	}

	priv, err := crypto.RestoreFromMnemonic(ctx, store, phrase, hashArray, privBytes)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	fmt.Printf("Recovered node ID: %s\n", priv.Public().NodeID())
	logger.Info("recovery complete", slog.String("nodeId", priv.Public().NodeID()))
	return nil
}

// readSecret prompts on stderr and reads a line without echoing it to the
// terminal, the same pattern cmd/internal/passphrase.Source uses for a
// keystore passphrase.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(raw), nil
}

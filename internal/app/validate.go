package app

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"peerchat/pkg/config"
)

// validateConfig fails fast on settings that would otherwise surface as
// confusing runtime errors.
func validateConfig(cfg config.Config) error {
	if cfg.Client.DBPath == "" {
		return fmt.Errorf("client.db_path is required")
	}
	if cfg.Client.SelfKeyHex == "" && cfg.Client.SelfKeyFile == "" {
		return fmt.Errorf("one of client.self_key_hex or client.self_key_file is required")
	}
	if cfg.Reconcile.Shards < 0 {
		return fmt.Errorf("reconcile.shards must not be negative")
	}
	if cfg.Reconcile.QueueCapacity < 0 {
		return fmt.Errorf("reconcile.queue_capacity must not be negative")
	}
	if cfg.Dispatch.RPS < 0 {
		return fmt.Errorf("dispatch.rps must not be negative")
	}
	return nil
}

// loadSelfKey resolves the account public key from config. The key is a
// hex-encoded ed25519 public key, inline or in a file.
func loadSelfKey(cfg config.Config) ([]byte, error) {
	raw := cfg.Client.SelfKeyHex
	if raw == "" {
		b, err := os.ReadFile(cfg.Client.SelfKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read self key file: %w", err)
		}
		raw = strings.TrimSpace(string(b))
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("self key is not valid hex: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("self key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return key, nil
}

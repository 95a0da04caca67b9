package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Signer holds the oracle's long-lived Ed25519 keypair and signs canonical
// attestation messages. Signing is a pure function of (message, private key):
// no network, no mutable state beyond the key loaded at startup.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// KeyConfig carries the key material sources for NewSigner, in resolution
// order: a raw hex seed, then an encrypted key file, then a generated
// development key.
type KeyConfig struct {
	// SeedHex is the hex-encoded 32-byte Ed25519 seed.
	SeedHex string

	// EncryptedKeyPath points to a JSON key file produced by EncryptSeed.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// NewSigner resolves the oracle signing key from cfg. When no key source is
// configured it generates a fresh random keypair for this process run, which
// is acceptable only outside production: every restart would change the
// oracle identity, so the condition is logged loudly.
func NewSigner(cfg KeyConfig, logger *slog.Logger) (*Signer, error) {
	if cfg.SeedHex != "" {
		seed, err := decodeSeed(cfg.SeedHex)
		if err != nil {
			return nil, err
		}
		return fromSeed(seed), nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("oracle: reading encrypted key file: %w", err)
		}
		seedHex, err := DecryptSeed(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		seed, err := decodeSeed(seedHex)
		if err != nil {
			return nil, err
		}
		return fromSeed(seed), nil
	}

	logger.Warn("NO ORACLE SIGNING KEY CONFIGURED - generated a random keypair; " +
		"attestations from this run are unverifiable after restart, do not use in production")

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("oracle: generating development key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// Sign returns the 64-byte detached Ed25519 signature over message.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// PublicKey returns the oracle's public key so downstream verifiers can check
// attestations without trusting this process.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// PublicKeyHex returns the hex encoding of the public key.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

func fromSeed(seed []byte) *Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

func decodeSeed(seedHex string) ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("oracle: signing seed is not valid hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("oracle: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

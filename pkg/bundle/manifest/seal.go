// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// SealAlgorithm is the only supported signature scheme.
const SealAlgorithm = "ed25519"

// Seal is the integrity signature over the canonical manifest.
type Seal struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// KeyOptions select the signing key: a PEM private key file first, then a
// seed, then a fresh ephemeral key. A seed of "env" reads FLAVOR_KEY_SEED.
type KeyOptions struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Seed           string
}

// LoadKeys resolves the signing key pair described by opts.
func LoadKeys(opts KeyOptions, logger hclog.Logger) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	logger = logging.OrNull(logger)
	switch {
	case opts.PrivateKeyPath != "":
		logger.Debug("🔐 Loading keys from files", "private", opts.PrivateKeyPath, "public", opts.PublicKeyPath)
		return loadKeysFromFiles(opts.PrivateKeyPath, opts.PublicKeyPath)
	case opts.Seed != "":
		seed := opts.Seed
		if seed == "env" {
			seed = os.Getenv("FLAVOR_KEY_SEED")
			if seed == "" {
				return nil, nil, fmt.Errorf("FLAVOR_KEY_SEED environment variable not set")
			}
		}
		sum := sha256.Sum256([]byte(seed))
		priv := ed25519.NewKeyFromSeed(sum[:])
		logger.Debug("🔑 Using seed-based key generation", "seed_hash", fmt.Sprintf("%x", sum[:8]))
		return priv, priv.Public().(ed25519.PublicKey), nil
	default:
		pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ephemeral keys: %w", err)
		}
		logger.Debug("🎲 Using ephemeral key pair")
		return priv, pub, nil
	}
}

// loadKeysFromFiles loads Ed25519 keys from PEM files. The public key is
// derived when publicKeyPath is empty.
func loadKeysFromFiles(privateKeyPath, publicKeyPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, fmt.Errorf("failed to decode private key PEM")
	}

	var priv ed25519.PrivateKey
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		var ok bool
		if priv, ok = key.(ed25519.PrivateKey); !ok {
			return nil, nil, fmt.Errorf("private key is not Ed25519")
		}
	} else if len(block.Bytes) == ed25519.PrivateKeySize {
		priv = ed25519.PrivateKey(block.Bytes)
	} else {
		return nil, nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	if publicKeyPath == "" {
		return priv, priv.Public().(ed25519.PublicKey), nil
	}

	data, err = os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ = pem.Decode(data)
	if block == nil {
		return nil, nil, fmt.Errorf("failed to decode public key PEM")
	}
	var pub ed25519.PublicKey
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		var ok bool
		if pub, ok = key.(ed25519.PublicKey); !ok {
			return nil, nil, fmt.Errorf("public key is not Ed25519")
		}
	} else if len(block.Bytes) == ed25519.PublicKeySize {
		pub = ed25519.PublicKey(block.Bytes)
	} else {
		return nil, nil, fmt.Errorf("unable to parse public key: %w", err)
	}
	if !pub.Equal(priv.Public()) {
		return nil, nil, fmt.Errorf("public key does not match private key")
	}
	return priv, pub, nil
}

// canonical is the signed form: compact JSON with an empty signature.
func canonical(m *Manifest) ([]byte, error) {
	c := *m
	if m.Seal != nil {
		s := *m.Seal
		s.Signature = ""
		c.Seal = &s
	}
	return json.Marshal(&c)
}

// Sign seals m with priv, replacing any existing seal.
func Sign(m *Manifest, priv ed25519.PrivateKey) error {
	m.Seal = &Seal{
		Algorithm: SealAlgorithm,
		PublicKey: base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}
	data, err := canonical(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for signing: %w", err)
	}
	m.Seal.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data))
	return nil
}

// Verify checks the seal against the embedded public key. When trusted is
// non-nil the embedded key must also equal it.
func Verify(m *Manifest, trusted ed25519.PublicKey) error {
	if m.Seal == nil {
		return fmt.Errorf("%w: manifest is not sealed", bundleerrors.ErrSignatureInvalid)
	}
	if m.Seal.Algorithm != SealAlgorithm {
		return fmt.Errorf("%w: unsupported algorithm %q", bundleerrors.ErrSignatureInvalid, m.Seal.Algorithm)
	}
	pub, err := base64.StdEncoding.DecodeString(m.Seal.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed public key", bundleerrors.ErrSignatureInvalid)
	}
	if trusted != nil && !trusted.Equal(ed25519.PublicKey(pub)) {
		return fmt.Errorf("%w: manifest signed by an untrusted key", bundleerrors.ErrSignatureInvalid)
	}
	sig, err := base64.StdEncoding.DecodeString(m.Seal.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", bundleerrors.ErrSignatureInvalid)
	}
	data, err := canonical(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for verification: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return fmt.Errorf("%w: signature does not match", bundleerrors.ErrSignatureInvalid)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
)

// Checksums are written as "algorithm:hexvalue", e.g. "sha256:c0ffee...".

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm: %s", algo)
	}
}

// ParseChecksum splits a prefixed checksum. Unprefixed values are sha256.
func ParseChecksum(s string) (algo, value string, err error) {
	algo, value, ok := strings.Cut(s, ":")
	if !ok {
		algo, value = "sha256", s
	}
	if _, err := newHash(algo); err != nil {
		return "", "", err
	}
	if _, err := hex.DecodeString(value); err != nil || value == "" {
		return "", "", fmt.Errorf("invalid checksum value %q", value)
	}
	return algo, strings.ToLower(value), nil
}

// Hasher computes a prefixed sha256 checksum over everything written to it.
type Hasher struct {
	h hash.Hash
	n int64
}

func NewHasher() *Hasher { return &Hasher{h: sha256.New()} }

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.h.Write(p)
	h.n += int64(n)
	return n, err
}

// Sum returns the checksum in prefixed form.
func (h *Hasher) Sum() string { return "sha256:" + hex.EncodeToString(h.h.Sum(nil)) }

// Size is the number of bytes hashed.
func (h *Hasher) Size() int64 { return h.n }

// VerifyFile recomputes the checksum of path and compares it with want.
func VerifyFile(path, want string) error {
	algo, value, err := ParseChecksum(want)
	if err != nil {
		return err
	}
	h, _ := newHash(algo)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != value {
		return fmt.Errorf("%w: %s: expected %s:%s, got %s:%s", bundleerrors.ErrChecksumMismatch, path, algo, value, algo, got)
	}
	return nil
}

// ShortID is the first 12 hex characters of a checksum, used to name cache
// directories.
func ShortID(checksum string) string {
	_, value, err := ParseChecksum(checksum)
	if err != nil || len(value) < 12 {
		return strings.NewReplacer(":", "", "/", "").Replace(checksum)
	}
	return value[:12]
}

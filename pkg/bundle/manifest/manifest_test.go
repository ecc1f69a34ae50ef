// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Format:        Format,
		Package:       PackageInfo{Name: "main_diff", Version: "1.2.0"},
		Executable:    "main_diff",
		Entry:         "main_diff.py",
		Interpreter:   []string{"python3", "-u"},
		ModulePathEnv: "PYTHONPATH",
		ConsoleMode:   false,
		Env:           map[string]string{"APP_MODE": "diff"},
		Hooks: []Hook{
			{Kind: "env", Env: map[string]string{"PLAYWRIGHT_BROWSERS_PATH": "{bundle}/playwright"}},
			{Kind: "script", Script: "_hooks/01-license.py"},
		},
		Archive: ArchiveInfo{File: "modules.tar.gz", Operations: "tar.gz", Checksum: "sha256:" + strings.Repeat("ab", 32), Size: 10, RawSize: 20, FileCount: 2},
		Modules: []string{"main_diff.py", "services/diff.py"},
		Data:    []string{"config.ini"},
		Build:   BuildInfo{Tool: "flavor-bundle", Version: "0.1.0", Timestamp: "2024-01-01T00:00:00Z", Platform: "linux/amd64"},
	}
}

func seededKey(t *testing.T, seed string) ed25519.PrivateKey {
	t.Helper()
	priv, _, err := LoadKeys(KeyOptions{Seed: seed}, hclog.NewNullLogger())
	require.NoError(t, err)
	return priv
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_bundle", "manifest.json")
	m := sampleManifest()
	require.NoError(t, Sign(m, seededKey(t, "test")))
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.NoError(t, Verify(got, nil))
}

func TestParseRejectsForeignFormat(t *testing.T) {
	_, err := Parse([]byte(`{"format":"pspf/2025"}`))
	assert.ErrorIs(t, err, bundleerrors.ErrUnsupportedFormat)

	_, err = Parse([]byte(`{"format":"flavor-bundle/1","surprise":true}`))
	assert.Error(t, err)
}

func TestSealDetectsTampering(t *testing.T) {
	priv := seededKey(t, "test")

	testCases := []struct {
		name   string
		tamper func(m *Manifest)
	}{
		{"entry", func(m *Manifest) { m.Entry = "evil.py" }},
		{"hook order", func(m *Manifest) { m.Hooks[0], m.Hooks[1] = m.Hooks[1], m.Hooks[0] }},
		{"checksum", func(m *Manifest) { m.Archive.Checksum = "sha256:" + strings.Repeat("cd", 32) }},
		{"env", func(m *Manifest) { m.Env["LD_PRELOAD"] = "/tmp/x.so" }},
		{"public key", func(m *Manifest) {
			other := seededKey(t, "other")
			m.Seal.PublicKey = mustSign(t, other).Seal.PublicKey
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := sampleManifest()
			require.NoError(t, Sign(m, priv))
			require.NoError(t, Verify(m, nil))

			tc.tamper(m)
			assert.ErrorIs(t, Verify(m, nil), bundleerrors.ErrSignatureInvalid)
		})
	}
}

func mustSign(t *testing.T, priv ed25519.PrivateKey) *Manifest {
	m := sampleManifest()
	require.NoError(t, Sign(m, priv))
	return m
}

func TestVerifyTrustedKey(t *testing.T) {
	priv := seededKey(t, "test")
	m := mustSign(t, priv)

	assert.NoError(t, Verify(m, priv.Public().(ed25519.PublicKey)))
	other := seededKey(t, "other")
	assert.ErrorIs(t, Verify(m, other.Public().(ed25519.PublicKey)), bundleerrors.ErrSignatureInvalid)

	m.Seal = nil
	assert.ErrorIs(t, Verify(m, nil), bundleerrors.ErrSignatureInvalid)
}

func TestLoadKeys(t *testing.T) {
	a := seededKey(t, "repeatable")
	b := seededKey(t, "repeatable")
	assert.Equal(t, a, b, "seeded keys are deterministic")

	t.Setenv("FLAVOR_KEY_SEED", "repeatable")
	c, _, err := LoadKeys(KeyOptions{Seed: "env"}, nil)
	require.NoError(t, err)
	assert.Equal(t, a, c)

	t.Setenv("FLAVOR_KEY_SEED", "")
	_, _, err = LoadKeys(KeyOptions{Seed: "env"}, nil)
	assert.Error(t, err)

	e1, _, err := LoadKeys(KeyOptions{}, nil)
	require.NoError(t, err)
	e2, _, err := LoadKeys(KeyOptions{}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2, "ephemeral keys differ")
}

func TestLoadKeysFromPEM(t *testing.T) {
	dir := t.TempDir()
	priv := seededKey(t, "pem")

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	pubDer, err := x509.MarshalPKIXPublicKey(priv.Public())
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "key.pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDer}), 0o644))

	got, pub, err := LoadKeys(KeyOptions{PrivateKeyPath: privPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, priv, got)
	assert.True(t, pub.Equal(priv.Public()))

	_, _, err = LoadKeys(KeyOptions{PrivateKeyPath: privPath, PublicKeyPath: pubPath}, nil)
	require.NoError(t, err)

	otherDer, err := x509.MarshalPKIXPublicKey(seededKey(t, "other").Public())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: otherDer}), 0o644))
	_, _, err = LoadKeys(KeyOptions{PrivateKeyPath: privPath, PublicKeyPath: pubPath}, nil)
	assert.ErrorContains(t, err, "does not match")

	require.NoError(t, os.WriteFile(privPath, []byte("not pem"), 0o600))
	_, _, err = LoadKeys(KeyOptions{PrivateKeyPath: privPath}, nil)
	assert.ErrorContains(t, err, "PEM")
}

func TestChecksums(t *testing.T) {
	h := NewHasher()
	_, err := h.Write([]byte("hello"))
	require.NoError(t, err)
	sum := h.Sum()
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	assert.Equal(t, int64(5), h.Size())
	assert.Equal(t, "2cf24dba5fb0", ShortID(sum))

	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	assert.NoError(t, VerifyFile(path, sum))
	assert.NoError(t, VerifyFile(path, strings.TrimPrefix(sum, "sha256:")))

	require.NoError(t, os.WriteFile(path, []byte("hellO"), 0o644))
	assert.ErrorIs(t, VerifyFile(path, sum), bundleerrors.ErrChecksumMismatch)

	_, _, err = ParseChecksum("md5:abcd")
	assert.Error(t, err)
	_, _, err = ParseChecksum("sha256:zz")
	assert.Error(t, err)
}

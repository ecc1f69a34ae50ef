// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), mode))
	return p
}

func sampleEntries(t *testing.T) []Entry {
	src := t.TempDir()
	return []Entry{
		{Name: "services/transfer.py", Source: writeSource(t, src, "services/transfer.py", "def run(): pass\n", 0o644)},
		{Name: "main_diff.py", Source: writeSource(t, src, "main_diff.py", "import services.transfer\n", 0o755)},
		{Name: "services/__init__.py", Source: writeSource(t, src, "services/__init__.py", "", 0o600)},
		{Name: "services/__pycache__/transfer.cpython-312.pyc", Source: writeSource(t, src, "services/__pycache__/transfer.cpython-312.pyc", "\x00bytecode", 0o644)},
	}
}

func TestWriteExtractRoundTrip(t *testing.T) {
	for _, chain := range []string{"tar", "tar.gz", "tar.bz2", "tar.zst"} {
		t.Run(chain, func(t *testing.T) {
			ops, err := operations.ParseChain(chain)
			require.NoError(t, err)

			var buf bytes.Buffer
			stats, err := Write(&buf, sampleEntries(t), Options{Operations: ops, Logger: hclog.NewNullLogger()})
			require.NoError(t, err)
			assert.Equal(t, 4, stats.Files)
			assert.Equal(t, []string{
				"main_diff.py",
				"services/__init__.py",
				"services/__pycache__/transfer.cpython-312.pyc",
				"services/transfer.py",
			}, stats.Names)

			dest := t.TempDir()
			n, err := Extract(bytes.NewReader(buf.Bytes()), ops, dest)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			got, err := os.ReadFile(filepath.Join(dest, "services", "transfer.py"))
			require.NoError(t, err)
			assert.Equal(t, "def run(): pass\n", string(got))

			info, err := os.Stat(filepath.Join(dest, "main_diff.py"))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit survives")
		})
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	ops := []uint8{operations.OpTar, operations.OpGzip}
	entries := sampleEntries(t)
	stamp := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var a, b bytes.Buffer
	_, err := Write(&a, entries, Options{Operations: ops, ModTime: stamp})
	require.NoError(t, err)

	reversed := []Entry{entries[3], entries[2], entries[1], entries[0]}
	_, err = Write(&b, reversed, Options{Operations: ops, ModTime: stamp})
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWriteUsesFixedModTime(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleEntries(t), Options{})
	require.NoError(t, err)

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), hdr.ModTime.Unix())
	assert.Equal(t, int64(0o755), hdr.Mode)
}

func TestWriteStrip(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Write(&buf, sampleEntries(t), Options{Strip: true})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.Skipped)

	names, err := List(&buf, []uint8{operations.OpTar})
	require.NoError(t, err)
	assert.NotContains(t, names, "services/__pycache__/transfer.cpython-312.pyc")
	assert.Contains(t, names, "services/transfer.py")
}

func TestWriteModeOverride(t *testing.T) {
	src := t.TempDir()
	entries := []Entry{{Name: "run.sh", Source: writeSource(t, src, "run.sh", "#!/bin/sh\n", 0o644), Mode: 0o700}}

	var buf bytes.Buffer
	_, err := Write(&buf, entries, Options{})
	require.NoError(t, err)

	hdr, err := tar.NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0o700), hdr.Mode)
}

func TestWriteRejects(t *testing.T) {
	src := t.TempDir()
	file := writeSource(t, src, "a.py", "", 0o644)

	testCases := []struct {
		name    string
		entries []Entry
	}{
		{"duplicate", []Entry{{Name: "a.py", Source: file}, {Name: "./a.py", Source: file}}},
		{"absolute", []Entry{{Name: "/etc/a.py", Source: file}}},
		{"traversal", []Entry{{Name: "../a.py", Source: file}}},
		{"missing source", []Entry{{Name: "b.py", Source: filepath.Join(src, "b.py")}}},
		{"directory source", []Entry{{Name: "d", Source: src}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Write(&bytes.Buffer{}, tc.entries, Options{})
			assert.Error(t, err)
		})
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.py", "/abs/evil.py", "a/../../evil.py"} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := tar.NewWriter(&buf)
			require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Size: 4}))
			_, err := tw.Write([]byte("evil"))
			require.NoError(t, err)
			require.NoError(t, tw.Close())

			parent := t.TempDir()
			dest := filepath.Join(parent, "out")
			_, err = Extract(&buf, []uint8{operations.OpTar}, dest)
			assert.ErrorIs(t, err, ErrUnsafeEntry)
			assert.NoFileExists(t, filepath.Join(parent, "evil.py"))
		})
	}
}

func TestExtractRejectsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeSymlink, Name: "link", Linkname: "/etc/passwd"}))
	require.NoError(t, tw.Close())

	_, err := Extract(&buf, []uint8{operations.OpTar}, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafeEntry)
}

func TestIsDebugArtifact(t *testing.T) {
	testCases := map[string]bool{
		"pkg/__pycache__/mod.cpython-312.pyc": true,
		"__pycache__/x.txt":                   true,
		"mod.pyc":                             true,
		"mod.pyo":                             true,
		"native/ext.pdb":                      true,
		"ui/app.js.map":                       true,
		"lib/core.debug":                      true,
		"mod.py":                              false,
		"pycache/mod.py":                      false,
		"maps/world.json":                     false,
	}
	for name, want := range testCases {
		assert.Equal(t, want, IsDebugArtifact(name), name)
	}
}

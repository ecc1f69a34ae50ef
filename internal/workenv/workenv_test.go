// SPDX-License-Identifier: Apache-2.0

package workenv

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoot(t *testing.T) {
	t.Setenv(CacheDirEnv, "/tmp/custom-cache")
	assert.Equal(t, "/tmp/custom-cache", CacheRoot())

	t.Setenv(CacheDirEnv, "")
	assert.NotEmpty(t, CacheRoot())
	assert.Equal(t, "flavor-bundle", filepath.Base(CacheRoot()))
}

func TestPaths(t *testing.T) {
	p := NewPaths("/cache", "2cf24dba5fb0")
	assert.Equal(t, "2cf24dba5fb0", p.ID())
	assert.Equal(t, filepath.Join("/cache", "modules", "2cf24dba5fb0"), p.Modules())
	assert.Equal(t, filepath.Join("/cache", "modules", ".2cf24dba5fb0.lock"), p.LockFile())
	assert.Equal(t, filepath.Join("/cache", "modules", "2cf24dba5fb0", ".extraction.complete"), p.CompleteFile())
	assert.Equal(t, filepath.Join("/cache", "modules", ".2cf24dba5fb0.tmp.42"), p.TempExtraction(42))
}

func TestMarkers(t *testing.T) {
	p := NewPaths(t.TempDir(), "abc123")
	assert.False(t, IsValid(p, "sha256:abc"))

	require.NoError(t, os.MkdirAll(p.Modules(), 0o755))
	assert.True(t, p.Exists())
	require.NoError(t, MarkComplete(p.Modules(), ValidationMarker{PackageName: "main_diff", Version: "1.0", Checksum: "sha256:abc", FileCount: 3}))

	assert.True(t, IsValid(p, "sha256:abc"))
	assert.False(t, IsValid(p, "sha256:def"))

	marker, err := ReadMarker(p)
	require.NoError(t, err)
	assert.Equal(t, 3, marker.FileCount)
	assert.False(t, marker.Timestamp.IsZero())

	require.NoError(t, MarkIncomplete(p))
	require.NoError(t, MarkIncomplete(p))
	assert.False(t, IsValid(p, "sha256:abc"))

	require.NoError(t, p.Remove())
	assert.False(t, p.Exists())
}

func TestCleanupStaleExtractions(t *testing.T) {
	root := t.TempDir()
	p := NewPaths(root, "abc123")

	live := p.TempExtraction(os.Getpid())
	dead := filepath.Join(root, "modules", fmt.Sprintf(".abc123.tmp.%d", 999999))
	unrelated := filepath.Join(root, "modules", "abc123")
	for _, d := range []string{live, dead, unrelated} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	require.NoError(t, CleanupStaleExtractions(root, hclog.NewNullLogger()))
	assert.DirExists(t, live)
	assert.DirExists(t, unrelated)
	assert.NoDirExists(t, dead)

	assert.NoError(t, CleanupStaleExtractions(filepath.Join(root, "absent"), nil))
}

// SPDX-License-Identifier: Apache-2.0

package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID returns a PID that is very unlikely to be in use.
func deadPID(t *testing.T) int {
	for pid := 999999; pid > 900000; pid-- {
		if !IsProcessRunning(pid) {
			return pid
		}
	}
	t.Skip("could not find an unused PID")
	return 0
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".app.lock")
	logger := hclog.NewNullLogger()

	lock, ok, err := TryAcquire(path, logger)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, lock.Path())

	pid, ok := ReadPID(path)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)

	_, ok, err = TryAcquire(path, logger)
	require.NoError(t, err)
	assert.False(t, ok, "lock held by this process")

	lock.Release()
	lock.Release()
	assert.NoFileExists(t, path)

	_, ok, err = TryAcquire(path, logger)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".app.lock")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0o644))

	_, ok, err := TryAcquire(path, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaleLocksAreRemoved(t *testing.T) {
	for name, content := range map[string]string{
		"dead pid": fmt.Sprintf("%d\n", deadPID(t)),
		"garbage":  "not-a-pid",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".app.lock")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			old := time.Now().Add(-time.Minute)
			require.NoError(t, os.Chtimes(path, old, old))

			lock, ok, err := TryAcquire(path, nil)
			require.NoError(t, err)
			require.True(t, ok)
			defer lock.Release()

			pid, _ := ReadPID(path)
			assert.Equal(t, os.Getpid(), pid)
		})
	}
}

// A lock judged stale may be replaced by a live holder before it is deleted.
func TestStaleRemovalKeepsReplacedLock(t *testing.T) {
	logger := hclog.NewNullLogger()
	for name, judged := range map[string]int{
		"dead pid": deadPID(t),
		"garbage":  0,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, ".app.lock")
			require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0o644))

			assert.False(t, removeStale(path, judged, logger))
			pid, ok := ReadPID(path)
			require.True(t, ok, "replacement lock restored")
			assert.Equal(t, os.Getppid(), pid)

			matches, err := filepath.Glob(filepath.Join(dir, "*.stale.*"))
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestStaleRemoval(t *testing.T) {
	logger := hclog.NewNullLogger()
	dir := t.TempDir()

	dead := deadPID(t)
	path := filepath.Join(dir, ".dead.lock")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", dead)), 0o644))
	assert.True(t, removeStale(path, dead, logger))
	assert.NoFileExists(t, path)

	assert.False(t, removeStale(filepath.Join(dir, ".absent.lock"), dead, logger), "already removed by another process")

	fresh := filepath.Join(dir, ".fresh.lock")
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))
	assert.False(t, removeStale(fresh, 0, logger), "unparseable lock rewritten within the fresh window")
	assert.FileExists(t, fresh)

	matches, err := filepath.Glob(filepath.Join(dir, "*.stale.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFreshEmptyLockIsHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".app.lock")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, ok, err := TryAcquire(path, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.FileExists(t, path)
}

func TestWait(t *testing.T) {
	PollInterval = 10 * time.Millisecond
	dir := t.TempDir()

	assert.NoError(t, Wait(context.Background(), filepath.Join(dir, "absent.lock"), time.Second, nil))

	stale := filepath.Join(dir, "stale.lock")
	require.NoError(t, os.WriteFile(stale, []byte(fmt.Sprintf("%d", deadPID(t))), 0o644))
	assert.NoError(t, Wait(context.Background(), stale, time.Second, nil))

	held := filepath.Join(dir, "held.lock")
	lock, ok, err := TryAcquire(held, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorContains(t, Wait(context.Background(), held, 50*time.Millisecond, nil), "timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, held, time.Second, nil), context.Canceled)

	go func() {
		time.Sleep(30 * time.Millisecond)
		lock.Release()
	}()
	assert.NoError(t, Wait(context.Background(), held, 2*time.Second, nil))
}

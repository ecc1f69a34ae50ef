// SPDX-License-Identifier: Apache-2.0

// Package lockfile implements PID lock files: exclusive create, holder PID
// written inside, and removal of locks whose holder has exited. The builder
// uses one per output name and the launcher one per module cache entry.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// PollInterval is how often Wait checks the lock file.
var PollInterval = 100 * time.Millisecond

// freshLockWindow is how long an empty or unreadable lock file is assumed
// to belong to a holder that is still writing it.
const freshLockWindow = 2 * time.Second

// Lock is a held lock file.
type Lock struct {
	path   string
	logger hclog.Logger
}

// Path is the lock file location.
func (l *Lock) Path() string { return l.path }

// TryAcquire creates the lock file at path. It returns ok=false without an
// error when a live process holds it. Stale locks (dead or unparseable
// holder) are removed first.
func TryAcquire(path string, logger hclog.Logger) (*Lock, bool, error) {
	logger = logging.OrNull(logger)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		logger.Debug("🔍 Lock file exists, checking if it's stale...", "path", path)
		pid, ok := ReadPID(path)
		switch {
		case !ok && time.Since(info.ModTime()) < freshLockWindow:
			// The holder has created the file but not written its PID yet.
			return nil, false, nil
		case !ok:
			logger.Info("🧹 Removing invalid lock file (couldn't parse PID)", "path", path)
			if !removeStale(path, 0, logger) {
				return nil, false, nil
			}
		case pid == os.Getpid():
			return nil, false, nil
		case IsProcessRunning(pid):
			logger.Debug("🔒 Lock held by active process", "pid", pid)
			return nil, false, nil
		default:
			logger.Info("🧹 Removing stale lock from dead process", "pid", pid)
			if !removeStale(path, pid, logger) {
				return nil, false, nil
			}
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			logger.Debug("🔒 Lock file appeared concurrently", "path", path)
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		os.Remove(path)
		return nil, false, err
	}
	logger.Debug("🔒 Acquired lock", "path", path, "pid", os.Getpid())
	return &Lock{path: path, logger: logger}, true, nil
}

// removeStale deletes the lock at path judged stale with holder pid (0 for
// an unparseable file). The file is renamed aside first so that a lock
// created by another process after the judgement is never deleted: if the
// aside copy no longer matches, it is linked back and false is returned.
func removeStale(path string, pid int, logger hclog.Logger) bool {
	aside := fmt.Sprintf("%s.stale.%d.%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		// Someone else removed or replaced it first.
		logger.Debug("Stale lock already gone", "path", path, "error", err)
		return false
	}
	defer os.Remove(aside)

	got, ok := ReadPID(aside)
	stale := ok && got == pid && !IsProcessRunning(got)
	if !ok && pid == 0 {
		info, err := os.Stat(aside)
		stale = err == nil && time.Since(info.ModTime()) >= freshLockWindow
	}
	if stale {
		return true
	}

	logger.Debug("🔒 Lock was taken over before stale removal, restoring", "path", path, "pid", got)
	if err := os.Link(aside, path); err != nil {
		logger.Warn("⚠️ Failed to restore lock file", "path", path, "error", err)
	}
	return false
}

// Release removes the lock file. Calling it more than once is harmless.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Debug("⚠️ Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	l.logger.Debug("🔓 Released lock", "path", l.path)
}

// ReadPID returns the PID recorded in a lock file.
func ReadPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Wait blocks until the lock file at path disappears, its holder dies, ctx
// ends or timeout passes.
func Wait(ctx context.Context, path string, timeout time.Duration, logger hclog.Logger) error {
	logger = logging.OrNull(logger)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Debug("✅ Lock released", "path", path)
			return nil
		}
		if pid, ok := ReadPID(path); ok && !IsProcessRunning(pid) {
			logger.Debug("Lock holder exited without releasing", "pid", pid)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for lock %s", path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/fsutil"
	"github.com/provide-io/flavor/go/bundle/internal/lockfile"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

const (
	stagingInfix = ".staging."
	backupInfix  = ".previous."
)

// commit swaps the staging directory into place. A previous output is moved
// aside first and only removed once the new one is in place; if the swap
// fails the previous output is restored.
func (r *Run) commit(_ context.Context) error {
	final := r.finalDir()
	backup := ""
	if _, err := os.Lstat(final); err == nil {
		backup = filepath.Join(r.b.opts.OutputDir, "."+r.d.OutputName+backupInfix+strconv.Itoa(os.Getpid()))
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("failed to clear backup path: %w", err)
		}
		if err := fsutil.Rename(final, backup, r.logger); err != nil {
			return fmt.Errorf("failed to move previous output aside: %w", err)
		}
	}

	if err := fsutil.Rename(r.staging, final, r.logger); err != nil {
		if backup != "" {
			if rerr := fsutil.Rename(backup, final, r.logger); rerr != nil {
				r.logger.Error("❌ Failed to restore previous output", "backup", backup, "error", rerr)
				err = errors.Join(err, rerr)
			}
		}
		return fmt.Errorf("failed to commit bundle: %w", err)
	}
	r.staging = ""

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			r.logger.Warn("⚠️ Failed to remove previous output", "path", backup, "error", err)
		}
	}
	return nil
}

// CleanStaging removes staging and backup directories for name under
// outDir that were left by builds whose process has exited.
func CleanStaging(outDir, name string, logger hclog.Logger) int {
	return cleanLeftovers(outDir, name, false, logger)
}

// cleanLeftovers removes staging and backup directories for name. Unless
// force is set, only those of exited processes are removed. The caller's
// own leftovers are never touched.
func cleanLeftovers(outDir, name string, force bool, logger hclog.Logger) int {
	logger = logging.OrNull(logger)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		pid, ok := leftoverPID(e.Name(), name)
		if !ok || !e.IsDir() || pid == os.Getpid() {
			continue
		}
		if !force && lockfile.IsProcessRunning(pid) {
			continue
		}
		p := filepath.Join(outDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			logger.Warn("⚠️ Failed to remove stale staging directory", "path", p, "error", err)
			continue
		}
		logger.Info("🧹 Removed stale staging directory", "path", p, "pid", pid)
		removed++
	}
	return removed
}

// leftoverPID parses ".<name>.staging.<pid>.<random>" and
// ".<name>.previous.<pid>".
func leftoverPID(entry, name string) (int, bool) {
	for _, infix := range []string{stagingInfix, backupInfix} {
		rest, ok := strings.CutPrefix(entry, "."+name+infix)
		if !ok {
			continue
		}
		pidStr, _, _ := strings.Cut(rest, ".")
		pid, err := strconv.Atoi(pidStr)
		if err != nil || pid <= 0 {
			return 0, false
		}
		return pid, true
	}
	return 0, false
}

// Clean removes the committed output for name and any stale staging left
// beside it. It refuses while another build holds the output lock.
func Clean(outDir, name string, logger hclog.Logger) error {
	logger = logging.OrNull(logger)
	lockPath := filepath.Join(outDir, "."+name+".lock")
	lock, ok, err := lockfile.TryAcquire(lockPath, logger)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", bundleerrors.ErrOutputLocked, name)
	}
	defer lock.Release()

	CleanStaging(outDir, name, logger)
	final := filepath.Join(outDir, name)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("failed to remove %s: %w", final, err)
	}
	logger.Info("🧹 Output removed", "path", final)
	return nil
}

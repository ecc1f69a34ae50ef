// SPDX-License-Identifier: Apache-2.0

// Package workenv manages the launcher's module cache: one extracted
// directory per archive checksum, guarded by a lock file and validated by
// a completion marker.
package workenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/lockfile"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// CacheDirEnv overrides the cache root.
const CacheDirEnv = "FLAVOR_CACHE_DIR"

const (
	modulesDir   = "modules"
	completeFile = ".extraction.complete"
	tmpInfix     = ".tmp."
)

// CacheRoot returns the root cache directory: FLAVOR_CACHE_DIR when set,
// otherwise the platform cache home (XDG on Linux, Library/Caches on macOS,
// LOCALAPPDATA on Windows).
func CacheRoot() string {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	if xdg.CacheHome != "" {
		return filepath.Join(xdg.CacheHome, "flavor-bundle")
	}
	return filepath.Join(os.TempDir(), "flavor-bundle", "cache")
}

// Paths locates the cache entry for one archive.
type Paths struct {
	root string
	id   string
}

// NewPaths returns the paths for the archive identified by id (a short
// checksum) under root.
func NewPaths(root, id string) *Paths {
	return &Paths{root: root, id: id}
}

// ID is the cache entry identifier.
func (p *Paths) ID() string { return p.id }

// Modules is the extracted module directory.
func (p *Paths) Modules() string {
	return filepath.Join(p.root, modulesDir, p.id)
}

// LockFile guards extraction into Modules.
func (p *Paths) LockFile() string {
	return filepath.Join(p.root, modulesDir, "."+p.id+".lock")
}

// CompleteFile is the completion marker inside Modules.
func (p *Paths) CompleteFile() string {
	return filepath.Join(p.Modules(), completeFile)
}

// TempExtraction is the per-process extraction directory, renamed to
// Modules once complete.
func (p *Paths) TempExtraction(pid int) string {
	return filepath.Join(p.root, modulesDir, "."+p.id+tmpInfix+strconv.Itoa(pid))
}

// Exists reports whether the module directory exists.
func (p *Paths) Exists() bool {
	info, err := os.Stat(p.Modules())
	return err == nil && info.IsDir()
}

// Remove deletes the module directory and its marker.
func (p *Paths) Remove() error {
	if err := os.RemoveAll(p.Modules()); err != nil {
		return fmt.Errorf("failed to remove cache entry %s: %w", p.id, err)
	}
	return nil
}

// CleanupStaleExtractions removes temporary extraction directories left by
// processes that have exited.
func CleanupStaleExtractions(root string, logger hclog.Logger) error {
	logger = logging.OrNull(logger)
	dir := filepath.Join(root, modulesDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		i := strings.LastIndex(name, tmpInfix)
		if !entry.IsDir() || !strings.HasPrefix(name, ".") || i < 0 {
			continue
		}
		pid, err := strconv.Atoi(name[i+len(tmpInfix):])
		if err != nil || lockfile.IsProcessRunning(pid) {
			continue
		}
		stale := filepath.Join(dir, name)
		logger.Info("🧹 Cleaning up stale extraction directory from dead process", "pid", pid)
		if err := os.RemoveAll(stale); err != nil {
			logger.Debug("⚠️ Failed to remove stale directory", "path", stale, "error", err)
		}
	}
	return nil
}

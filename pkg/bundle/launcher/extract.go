// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/provide-io/flavor/go/bundle/internal/fsutil"
	"github.com/provide-io/flavor/go/bundle/internal/lockfile"
	"github.com/provide-io/flavor/go/bundle/internal/workenv"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/archive"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
)

// maxLockRounds bounds how often EnsureModules waits for another extractor
// before giving up.
const maxLockRounds = 5

// EnsureModules returns the extracted module directory for the bundle,
// extracting the archive into the cache when no complete copy exists.
// Concurrent launchers of the same bundle share one extraction.
func (l *Launcher) EnsureModules(ctx context.Context) (string, error) {
	m := l.bundle.Manifest
	paths := workenv.NewPaths(l.opts.CacheRoot, manifest.ShortID(m.Archive.Checksum))
	if err := workenv.CleanupStaleExtractions(l.opts.CacheRoot, l.logger); err != nil {
		l.logger.Debug("⚠️ Stale extraction cleanup failed", "error", err)
	}

	for round := 0; round < maxLockRounds; round++ {
		if workenv.IsValid(paths, m.Archive.Checksum) {
			l.logger.Debug("♻️ Using cached modules", "path", paths.Modules())
			return paths.Modules(), nil
		}

		lock, ok, err := lockfile.TryAcquire(paths.LockFile(), l.logger)
		if err != nil {
			return "", withCode(ExitIOError, err)
		}
		if !ok {
			l.logger.Info("⏳ Waiting for another launcher to finish extracting", "lock", paths.LockFile())
			if err := lockfile.Wait(ctx, paths.LockFile(), l.opts.LockTimeout, l.logger); err != nil {
				return "", withCode(ExitExtractionError, err)
			}
			continue
		}

		dir, err := l.extractLocked(paths)
		lock.Release()
		return dir, err
	}
	return "", withCode(ExitExtractionError, fmt.Errorf("gave up waiting for extraction lock %s", paths.LockFile()))
}

func (l *Launcher) extractLocked(paths *workenv.Paths) (string, error) {
	m := l.bundle.Manifest
	// Another process may have finished between our check and the lock.
	if workenv.IsValid(paths, m.Archive.Checksum) {
		return paths.Modules(), nil
	}

	ops, err := operations.ParseChain(m.Archive.Operations)
	if err != nil {
		return "", withCode(ExitBundleError, err)
	}

	tmp := paths.TempExtraction(os.Getpid())
	if err := os.RemoveAll(tmp); err != nil {
		return "", withCode(ExitIOError, err)
	}
	fail := func(code int, err error) (string, error) {
		os.RemoveAll(tmp)
		return "", withCode(code, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fail(ExitIOError, err)
	}
	if err := workenv.CheckDiskSpace(tmp, workenv.SpaceNeeded(m.Archive.RawSize, m.Archive.Size), l.logger); err != nil {
		return fail(ExitExtractionError, err)
	}

	start := time.Now()
	f, err := os.Open(l.bundle.ArchivePath())
	if err != nil {
		return fail(ExitIOError, fmt.Errorf("failed to open module archive: %w", err))
	}
	n, err := archive.Extract(f, ops, tmp)
	f.Close()
	if err != nil {
		return fail(ExitExtractionError, fmt.Errorf("failed to extract modules: %w", err))
	}
	if m.Archive.FileCount > 0 && n != m.Archive.FileCount {
		return fail(ExitExtractionError, fmt.Errorf("extracted %d files, manifest lists %d", n, m.Archive.FileCount))
	}

	marker := workenv.ValidationMarker{
		PackageName: m.Package.Name,
		Version:     m.Package.Version,
		Checksum:    m.Archive.Checksum,
		FileCount:   n,
	}
	if err := workenv.MarkComplete(tmp, marker); err != nil {
		return fail(ExitIOError, err)
	}
	if err := paths.Remove(); err != nil {
		return fail(ExitIOError, err)
	}
	if err := fsutil.Rename(tmp, paths.Modules(), l.logger); err != nil {
		return fail(ExitIOError, fmt.Errorf("failed to install extracted modules: %w", err))
	}
	l.logger.Info("📤 Modules extracted", "path", paths.Modules(), "files", n, "duration", time.Since(start).Round(time.Millisecond))
	return paths.Modules(), nil
}

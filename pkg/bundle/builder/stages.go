// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/provide-io/flavor/go/bundle/internal/fsutil"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/archive"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/pe"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/walker"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/permissions"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/shellparse"
)

// HooksDir holds script hooks inside the module archive.
const HooksDir = "_hooks"

// validate checks the descriptor and the build inputs, then takes the
// output lock. Nothing is written before every check has passed.
func (r *Run) validate(_ context.Context) error {
	var errs []error
	if err := descriptor.Validate(r.b.fs, r.d); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.interpreter(); err != nil {
		errs = append(errs, fmt.Errorf("%w: interpreter: %v", bundleerrors.ErrInvalidDescriptor, err))
	}
	launcher, err := FindLauncher(r.b.opts.LauncherBin)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.launcherPath = launcher

	if err := r.acquireLock(); err != nil {
		return err
	}
	// The previous output is only replaced at commit. Under the output lock
	// no other build of this name owns a staging directory.
	n := cleanLeftovers(r.b.opts.OutputDir, r.d.OutputName, r.b.opts.Clean, r.logger)
	if r.b.opts.Clean {
		r.logger.Info("🧹 Cleaned build leftovers", "removed", n)
	}
	return nil
}

func (r *Run) interpreter() ([]string, error) {
	spec := r.d.Interpreter
	if spec == "" {
		spec = r.b.opts.DefaultInterpreter
	}
	if spec == "" {
		return nil, nil
	}
	return shellparse.Split(spec)
}

func (r *Run) discover(ctx context.Context) error {
	w := r.b.opts.Walker
	if w == nil {
		var err error
		if w, err = walker.ForDescriptor(r.d, r.logger); err != nil {
			return err
		}
	}
	r.walker = w

	var seeds []string
	for _, h := range r.d.RuntimeHooks {
		if h.Kind() == descriptor.HookScript {
			seeds = append(seeds, h.Script)
		}
	}
	mods, err := w.Discover(ctx, r.d.EntryPoint, seeds...)
	if err != nil {
		return fmt.Errorf("dependency discovery failed: %w", err)
	}
	r.modules = mods
	r.logger.Info("🔍 Modules discovered", "count", len(mods), "walker", r.d.Walker)
	return nil
}

// resolve adds forced modules (and whatever they import, when the walker
// can follow them) and drops excluded ones.
func (r *Run) resolve(ctx context.Context) error {
	ids := descriptor.ResolveForcedModules(r.d)
	forced, err := walker.ResolveForced(ids, r.d.SearchRoots())
	if err != nil {
		return err
	}
	var expanded []walker.Module
	if x, ok := r.walker.(walker.Expander); ok && len(forced) > 0 {
		if expanded, err = x.Expand(ctx, forced); err != nil {
			return fmt.Errorf("failed to follow forced modules: %w", err)
		}
	}
	before := len(r.modules)
	r.modules = walker.Exclude(walker.Merge(r.modules, forced, expanded), r.d.ExcludeModules)
	r.logger.Debug("🧩 Modules resolved", "forced", len(ids), "added", len(r.modules)-before, "total", len(r.modules))
	return nil
}

// archive writes _bundle/modules.tar[.ext] into a fresh staging directory.
func (r *Run) archive(_ context.Context) error {
	staging, err := os.MkdirTemp(r.b.opts.OutputDir, "."+r.d.OutputName+stagingInfix+fmt.Sprint(os.Getpid())+".")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	r.staging = staging
	r.logger.Debug("📁 Staging directory", "path", staging)

	ops, err := operations.ChainFor(r.d.Compress, r.d.Compression)
	if err != nil {
		return err
	}

	var entries []archive.Entry
	for _, m := range r.modules {
		entries = append(entries, archive.Entry{Name: m.ArchivePath(), Source: m.Path})
	}
	r.hooks = nil
	for i, h := range r.d.RuntimeHooks {
		mh := manifest.Hook{Kind: string(h.Kind()), Env: h.Env}
		if h.Kind() == descriptor.HookScript {
			mh.Script = fmt.Sprintf("%s/%02d-%s", HooksDir, i, filepath.Base(h.Script))
			entries = append(entries, archive.Entry{Name: mh.Script, Source: h.Script})
		}
		r.hooks = append(r.hooks, mh)
	}

	bundleDir := filepath.Join(staging, descriptor.BundleDir)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return err
	}
	name := "modules" + operations.Extension(ops)
	f, err := os.Create(filepath.Join(bundleDir, name))
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	var modTime time.Time
	if ts, reproducible := timestamp(); reproducible {
		modTime = ts
	}
	hasher := manifest.NewHasher()
	stats, err := archive.Write(io.MultiWriter(f, hasher), entries, archive.Options{
		Operations: ops,
		ModTime:    modTime,
		Strip:      r.d.Strip,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	r.archiveInfo = manifest.ArchiveInfo{
		File:       name,
		Operations: operations.ChainString(ops),
		Checksum:   hasher.Sum(),
		Size:       hasher.Size(),
		RawSize:    stats.RawBytes,
		FileCount:  stats.Files,
	}
	r.archiveLen = hasher.Size()
	r.logger.Info("📦 Module archive written", "file", name, "files", stats.Files,
		"skipped", stats.Skipped, "size", hasher.Size(), "checksum", r.archiveInfo.Checksum)
	return nil
}

// launcher installs the launcher executable and writes the sealed manifest.
func (r *Run) launcher(_ context.Context) error {
	head, err := readHead(r.launcherPath, 4096)
	if err != nil {
		return err
	}
	isPE := pe.IsPE(head)
	goos := runtime.GOOS
	if isPE {
		goos = "windows"
	} else if goos == "windows" {
		goos = "linux"
	}
	r.exeName = descriptor.ExecutableNameFor(r.d.OutputName, goos)

	dst := filepath.Join(r.staging, r.exeName)
	if err := fsutil.CopyFile(r.launcherPath, dst, permissions.DefaultExecutablePerms); err != nil {
		return fmt.Errorf("failed to install launcher: %w", err)
	}
	r.logger.Debug("🚀 Launcher installed", "from", r.launcherPath, "name", r.exeName, "pe", isPE)

	if isPE {
		err := pe.Prepare(dst, pe.Options{
			Console:          r.d.ConsoleMode,
			IconPath:         r.d.Icon,
			Name:             r.d.Name,
			Version:          r.d.Version,
			Description:      r.d.Description,
			OriginalFilename: r.exeName,
		}, r.logger)
		if err != nil {
			return err
		}
	} else if r.d.Icon != "" {
		r.logger.Warn("⚠️ Icon ignored for non-PE launcher", "icon", r.d.Icon)
	}

	m, err := r.buildManifest()
	if err != nil {
		return err
	}
	priv, _, err := manifest.LoadKeys(r.b.opts.Keys, r.logger)
	if err != nil {
		return err
	}
	if err := manifest.Sign(m, priv); err != nil {
		return err
	}
	if err := manifest.Write(filepath.Join(r.staging, descriptor.BundleDir, descriptor.ManifestFile), m); err != nil {
		return err
	}
	r.logger.Debug("🔏 Manifest sealed", "public_key", m.Seal.PublicKey)
	return nil
}

func (r *Run) buildManifest() (*manifest.Manifest, error) {
	interp, err := r.interpreter()
	if err != nil {
		return nil, err
	}
	ts, reproducible := timestamp()
	platform := runtime.GOOS + "/" + runtime.GOARCH
	if !reproducible {
		if host, err := os.Hostname(); err == nil {
			platform += " " + host
		}
	}

	m := &manifest.Manifest{
		Format: manifest.Format,
		Package: manifest.PackageInfo{
			Name:        r.d.Name,
			Version:     r.d.Version,
			Description: r.d.Description,
		},
		Executable:    r.exeName,
		Entry:         r.d.EntryArchivePath(),
		Interpreter:   interp,
		ModulePathEnv: r.d.ModulePathEnv,
		ConsoleMode:   r.d.ConsoleMode,
		Env:           r.d.Env,
		Hooks:         r.hooks,
		Archive:       r.archiveInfo,
		Data:          r.dataFiles,
		Build: manifest.BuildInfo{
			Tool:      ToolName,
			Version:   r.b.opts.ToolVersion,
			Timestamp: ts.Format(time.RFC3339),
			Platform:  platform,
		},
	}
	for _, mod := range r.modules {
		if mod.Entry {
			m.Entry = mod.ArchivePath()
		}
		m.Modules = append(m.Modules, mod.ArchivePath())
	}
	sort.Strings(m.Data)
	return m, nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open launcher: %w", err)
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, fmt.Errorf("failed to read launcher: %w", err)
	}
	return buf[:read], nil
}

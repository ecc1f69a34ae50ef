// SPDX-License-Identifier: Apache-2.0

// Package builder evaluates bundle descriptors into committed output
// directories.
//
// One build walks a fixed pipeline (validate, discover, resolve, archive,
// copy, launcher, commit). Everything up to commit happens in a staging
// directory beside the final output, so a failed or cancelled build never
// touches a previous bundle. The output name is guarded by a PID lock file
// for the duration of the build.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/buildinfo"
	"github.com/provide-io/flavor/go/bundle/internal/lockfile"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/walker"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/spf13/afero"
)

// ToolName is recorded in every manifest.
const ToolName = "flavor-bundle"

// Options configure a Builder.
type Options struct {
	// OutputDir receives <OutputDir>/<output_name>/.
	OutputDir string
	// Clean removes the previous output before building.
	Clean bool
	// LauncherBin is the launcher executable copied into each bundle. When
	// empty, FindLauncher locates one.
	LauncherBin string
	Keys        manifest.KeyOptions
	// DefaultInterpreter applies to descriptors that leave interpreter
	// unset.
	DefaultInterpreter string
	ToolVersion        string

	// Walker overrides the walker selected by the descriptor.
	Walker walker.Walker
	// OnStage is called before each stage starts.
	OnStage func(d *descriptor.Descriptor, stage Stage)
	Logger  hclog.Logger
}

// Result describes a committed bundle.
type Result struct {
	OutputDir      string
	ExecutablePath string
	// Modules are the archive paths of every bundled module, entry first.
	Modules     []string
	ArchiveSize int64
	Duration    time.Duration
}

// Builder runs builds. It holds no per-build state and can run several
// builds concurrently.
type Builder struct {
	opts   Options
	fs     afero.Fs
	logger hclog.Logger
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.OutputDir == "" {
		opts.OutputDir = "dist"
	}
	if opts.ToolVersion == "" {
		opts.ToolVersion = buildinfo.Version
	}
	return &Builder{opts: opts, fs: afero.NewOsFs(), logger: logging.OrNull(opts.Logger)}
}

// Build evaluates d and commits the bundle.
func (b *Builder) Build(ctx context.Context, d *descriptor.Descriptor) (*Result, error) {
	return b.NewRun(d).Execute(ctx)
}

// Run is a single evaluation of one descriptor.
type Run struct {
	b      *Builder
	d      *descriptor.Descriptor
	logger hclog.Logger

	state  State
	failed Stage

	lock         *lockfile.Lock
	staging      string
	started      time.Time
	launcherPath string

	walker      walker.Walker
	modules     []walker.Module
	hooks       []manifest.Hook
	archiveInfo manifest.ArchiveInfo
	archiveLen  int64
	dataFiles   []string
	exeName     string
}

// NewRun prepares a build of d without starting it.
func (b *Builder) NewRun(d *descriptor.Descriptor) *Run {
	return &Run{
		b:      b,
		d:      d,
		logger: b.logger.Named(d.OutputName),
		state:  StateUnvalidated,
	}
}

// State reports where the run is in its lifecycle.
func (r *Run) State() State { return r.state }

// FailedStage is the stage that failed, or "" when the run has not failed.
func (r *Run) FailedStage() Stage { return r.failed }

// Execute runs every stage in order. Cancellation is honoured between
// stages; any failure discards the staging directory.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	if r.state != StateUnvalidated {
		return nil, fmt.Errorf("build of %s already ran (state %s)", r.d.OutputName, r.state)
	}
	r.started = time.Now()
	defer func() { r.lock.Release() }()

	steps := map[Stage]func(context.Context) error{
		StageValidate: r.validate,
		StageDiscover: r.discover,
		StageResolve:  r.resolve,
		StageArchive:  r.archive,
		StageCopy:     r.copyData,
		StageLauncher: r.launcher,
		StageCommit:   r.commit,
	}

	for _, stage := range Stages {
		if r.b.opts.OnStage != nil {
			r.b.opts.OnStage(r.d, stage)
		}
		if err := ctx.Err(); err != nil {
			return nil, r.fail(stage, err)
		}
		r.logger.Debug("▶️ Stage", "stage", stage)
		if err := steps[stage](ctx); err != nil {
			return nil, r.fail(stage, err)
		}
		r.state = next(r.state, stage)
	}

	res := &Result{
		OutputDir:      r.finalDir(),
		ExecutablePath: filepath.Join(r.finalDir(), r.exeName),
		ArchiveSize:    r.archiveLen,
		Duration:       time.Since(r.started),
	}
	for _, m := range r.modules {
		res.Modules = append(res.Modules, m.ArchivePath())
	}
	r.logger.Info("✅ Bundle committed", "path", res.OutputDir, "modules", len(res.Modules),
		"archive_size", res.ArchiveSize, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

func (r *Run) fail(stage Stage, err error) error {
	r.state = StateFailed
	r.failed = stage
	r.discardStaging()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("🛑 Build cancelled", "stage", stage)
	} else {
		r.logger.Error("❌ Build failed", "stage", stage, "error", err)
	}
	return &bundleerrors.BuildError{Stage: string(stage), Cause: err}
}

func (r *Run) finalDir() string {
	return filepath.Join(r.b.opts.OutputDir, r.d.OutputName)
}

func (r *Run) lockPath() string {
	return filepath.Join(r.b.opts.OutputDir, "."+r.d.OutputName+".lock")
}

func (r *Run) discardStaging() {
	if r.staging == "" {
		return
	}
	if err := r.b.fs.RemoveAll(r.staging); err != nil {
		r.logger.Warn("⚠️ Failed to remove staging directory", "path", r.staging, "error", err)
		return
	}
	r.logger.Debug("🧹 Staging discarded", "path", r.staging)
	r.staging = ""
}

// acquireLock takes the output lock, creating the output directory.
func (r *Run) acquireLock() error {
	if err := r.b.fs.MkdirAll(r.b.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	lock, ok, err := lockfile.TryAcquire(r.lockPath(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to lock output %s: %w", r.d.OutputName, err)
	}
	if !ok {
		holder, _ := lockfile.ReadPID(r.lockPath())
		return fmt.Errorf("%w: %s (pid %d)", bundleerrors.ErrOutputLocked, r.d.OutputName, holder)
	}
	r.lock = lock
	return nil
}

// timestamp returns the build time, honouring SOURCE_DATE_EPOCH.
func timestamp() (time.Time, bool) {
	epochStr := os.Getenv("SOURCE_DATE_EPOCH")
	if epochStr == "" {
		return time.Now().UTC(), false
	}
	if t, err := time.Parse(time.RFC3339, epochStr); err == nil {
		return t.UTC(), true
	}
	if secs, err := strconv.ParseInt(epochStr, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Now().UTC(), false
}

// SPDX-License-Identifier: Apache-2.0

// Package launcher is the runtime half of a bundle. It verifies the bundle
// next to the running executable, extracts its modules into a shared cache,
// runs the runtime hooks in declared order and hands control to the entry
// point.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/workenv"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// ExecModeEnv selects process replacement ("exec") instead of a child
// process. Ignored on Windows.
const ExecModeEnv = "FLAVOR_EXEC_MODE"

// DefaultLockTimeout bounds the wait for another launcher's extraction.
const DefaultLockTimeout = 2 * time.Minute

// Options configure a Launcher.
type Options struct {
	// CacheRoot defaults to workenv.CacheRoot().
	CacheRoot   string
	Validation  ValidationLevel
	LockTimeout time.Duration
	// Exec replaces the launcher process with the entry point on Unix.
	Exec bool
	// Dir is the working directory for hooks and the entry point. Defaults
	// to the launcher's own working directory.
	Dir string
	// Environ is the parent environment. Defaults to os.Environ().
	Environ []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger hclog.Logger
}

// Launcher runs one bundle.
type Launcher struct {
	bundle *Bundle
	opts   Options
	logger hclog.Logger
}

// New creates a launcher for b.
func New(b *Bundle, opts Options) *Launcher {
	if opts.CacheRoot == "" {
		opts.CacheRoot = workenv.CacheRoot()
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			opts.Dir = cwd
		}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Launcher{bundle: b, opts: opts, logger: logging.OrNull(opts.Logger)}
}

// Bundle returns the bundle being launched.
func (l *Launcher) Bundle() *Bundle { return l.bundle }

// Run verifies and prepares the bundle, runs its hooks and then the entry
// point with args. It returns the entry point's exit status. In exec mode
// a successful call does not return.
func (l *Launcher) Run(ctx context.Context, args []string) (int, error) {
	cmd, err := l.Prepare(ctx, args)
	if err != nil {
		return ExitCode(err), err
	}
	if l.opts.Exec && runtime.GOOS != "windows" {
		return ExitExecutionError, withCode(ExitExecutionError, execReplace(cmd, l.logger))
	}
	return l.spawn(cmd)
}

// Prepare does everything up to starting the entry point: verification,
// extraction, environment and hooks. The returned command is ready to run.
func (l *Launcher) Prepare(ctx context.Context, args []string) (*exec.Cmd, error) {
	m := l.bundle.Manifest
	l.logger.Debug("📖 Launching bundle", "name", m.Package.Name, "version", m.Package.Version, "root", l.bundle.Root)

	if err := l.bundle.Verify(l.opts.Validation, l.logger); err != nil {
		return nil, err
	}
	modules, err := l.EnsureModules(ctx)
	if err != nil {
		return nil, err
	}

	ph := Placeholders{Bundle: l.bundle.Root, Modules: modules, Exe: l.bundle.Exe}
	env := l.Environment(ph)
	if err := l.RunHooks(ctx, env, ph); err != nil {
		return nil, err
	}
	return l.command(modules, m.Entry, args, env), nil
}

// Environment is the parent environment plus the bundle variables, the
// module path and the static env. Hooks run on top of it.
func (l *Launcher) Environment(ph Placeholders) *Env {
	m := l.bundle.Manifest
	env := NewEnv(l.opts.Environ)
	env.Set(BundleRootEnv, ph.Bundle)
	env.Set(BundleModulesEnv, ph.Modules)
	if m.ModulePathEnv != "" {
		env.PrependPath(m.ModulePathEnv, ph.Modules)
	}
	for k, v := range m.Env {
		env.Set(k, ph.Expand(v))
	}
	return env
}

// command builds the invocation of an archive-relative script: through the
// interpreter when one is recorded, directly otherwise.
func (l *Launcher) command(modules, script string, args []string, env *Env) *exec.Cmd {
	path := filepath.Join(modules, filepath.FromSlash(script))
	argv := append(append([]string(nil), l.bundle.Manifest.Interpreter...), path)
	argv = append(argv, args...)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.opts.Dir
	cmd.Env = env.List()
	cmd.Stdin = l.opts.Stdin
	cmd.Stdout = l.opts.Stdout
	cmd.Stderr = l.opts.Stderr
	l.logger.Trace("Command prepared", "argv", strings.Join(argv, " "), "dir", cmd.Dir, "env_count", len(cmd.Env))
	return cmd
}

func (l *Launcher) spawn(cmd *exec.Cmd) (int, error) {
	l.logger.Debug("👶 Using spawn mode (child process)")
	l.logger.Info("🚀 Executing entry point", "path", cmd.Path)
	if err := cmd.Start(); err != nil {
		return ExitExecutionError, withCode(ExitExecutionError, fmt.Errorf("failed to start entry point: %w", err))
	}
	stop := forwardSignals(cmd.Process, l.logger)
	defer stop()

	err := cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		l.logger.Info("⏹️ Process exited", "code", exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return ExitExecutionError, withCode(ExitExecutionError, fmt.Errorf("process error: %w", err))
	}
	l.logger.Debug("✅ Process completed successfully")
	return 0, nil
}

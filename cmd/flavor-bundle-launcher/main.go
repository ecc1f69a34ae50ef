// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/buildinfo"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/launcher"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

const name = "flavor-bundle-launcher"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(launcher.ExitPanic)
		}
	}()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		return launcher.ExitIOError
	}

	b, err := launcher.Open(exePath)
	if err != nil {
		// A bare launcher binary has no bundle beside it.
		if len(args) > 0 && (args[0] == "--version" || args[0] == "-V") {
			printVersion()
			return 0
		}
		fmt.Fprintf(os.Stderr, "❌ %s: no bundle found: %v\n", name, err)
		return launcher.ExitCode(err)
	}

	logger, closeLog := newLogger(b)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := launcher.New(b, launcher.Options{
		Validation: launcher.ValidationLevelFromEnv(),
		Exec:       strings.EqualFold(os.Getenv(launcher.ExecModeEnv), "exec"),
		Logger:     logger,
	})

	if launcher.CLIEnabled() {
		logger.Debug("💻 Running in CLI mode")
		if len(args) > 0 && (args[0] == "--version" || args[0] == "-V") {
			printVersion()
			return 0
		}
		return l.RunCLI(ctx, args, os.Stdout)
	}

	code, err := l.Run(ctx, args)
	if err != nil {
		logger.Error("❌ Launch failed", "error", err, "exit_code", code)
	}
	return code
}

func printVersion() {
	fmt.Printf("%s %s\n", name, buildinfo.Version)
	fmt.Printf("Built: %s\n", buildinfo.Timestamp())
}

// newLogger logs to stderr for console bundles and to
// _bundle/launcher.log for windowed ones, which have no console.
func newLogger(b *launcher.Bundle) (hclog.Logger, func()) {
	lvl := logging.ResolveLevel("", "FLAVOR_LAUNCHER_LOG_LEVEL", "warn")
	level := lvl.Name
	if lvl.JSON {
		level = "json:" + lvl.Name
	}

	var out io.Writer
	closeLog := func() {}
	if !b.Manifest.ConsoleMode && os.Getenv("FLAVOR_LOG_PATH") == "" {
		path := filepath.Join(b.BundleDir(), "launcher.log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
			closeLog = func() { f.Close() }
		}
	}
	logger := logging.NewLogger(logging.Options{Name: name, Level: level, Output: out})
	logger.Debug("Log level", "level", lvl.Name, "source", lvl.Source)
	return logger, closeLog
}

// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Options controls how NewLogger builds a logger.
type Options struct {
	Name string
	// Level is a level name, optionally prefixed with "json" ("json:debug").
	Level string
	// Output defaults to stderr, or to FLAVOR_LOG_PATH when that is set.
	Output io.Writer
}

// Level is a resolved log level together with where it came from.
type Level struct {
	Name   string
	Source string
	JSON   bool
}

// ResolveLevel picks the log level. Order: explicit value, the
// component-specific env var, FLAVOR_LOG_LEVEL, then fallback.
func ResolveLevel(explicit, componentEnv, fallback string) Level {
	var raw, source string
	switch {
	case explicit != "":
		raw, source = explicit, "cli"
	case componentEnv != "" && os.Getenv(componentEnv) != "":
		raw, source = os.Getenv(componentEnv), componentEnv
	case os.Getenv("FLAVOR_LOG_LEVEL") != "":
		raw, source = os.Getenv("FLAVOR_LOG_LEVEL"), "FLAVOR_LOG_LEVEL"
	default:
		raw, source = fallback, "default"
	}

	lvl := Level{Name: raw, Source: source}
	if strings.HasPrefix(raw, "json") {
		lvl.JSON = true
		lvl.Name = "info"
		if _, after, ok := strings.Cut(raw, ":"); ok && after != "" {
			lvl.Name = after
		}
	}
	return lvl
}

// NewLogger creates an hclog logger with the flavor conventions: UTC
// timestamps, optional JSON, and a 🐹 line prefix for human output.
func NewLogger(opts Options) hclog.Logger {
	lvl := ResolveLevel(opts.Level, "", "info")
	if os.Getenv("FLAVOR_JSON_LOG") == "1" {
		lvl.JSON = true
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
		if logPath := os.Getenv("FLAVOR_LOG_PATH"); logPath != "" {
			if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				output = file
			}
		}
	}

	if !lvl.JSON {
		output = NewPrefixWriter(linePrefix(), output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      hclog.LevelFromString(lvl.Name),
		JSONFormat: lvl.JSON,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// linePrefix is ASCII on Windows consoles, which mangle the emoji.
func linePrefix() string {
	if runtime.GOOS == "windows" {
		return "[GO] "
	}
	return "🐹 "
}

// OrNull returns logger, or a null logger when it is nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}

// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CLIEnv enables the launcher's own subcommands instead of running the
// entry point.
const CLIEnv = "FLAVOR_LAUNCHER_CLI"

// CLIEnabled reports whether FLAVOR_LAUNCHER_CLI is set to a true value.
func CLIEnabled() bool {
	val := os.Getenv(CLIEnv)
	if val == "" {
		return false
	}
	switch strings.ToLower(val) {
	case "on", "yes":
		return true
	}
	b, err := strconv.ParseBool(val)
	return err == nil && b
}

// RunCLI handles "info", "verify", "manifest", "extract" and "run". It
// returns the process exit code.
func (l *Launcher) RunCLI(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		args = []string{"info"}
	}
	switch args[0] {
	case "info":
		fmt.Fprint(out, l.bundle.Describe())
		status := "✓"
		if err := l.bundle.Verify(ValidationStrict, nil); err != nil {
			status = "✗"
		}
		fmt.Fprintf(out, "Verified: %s\n", status)
		return 0
	case "verify":
		if err := l.bundle.Verify(ValidationStrict, l.logger); err != nil {
			fmt.Fprintf(out, "❌ Verification failed: %v\n", err)
			return ExitCode(err)
		}
		fmt.Fprintln(out, "✅ Bundle verified")
		return 0
	case "manifest":
		data, err := json.MarshalIndent(l.bundle.Manifest, "", "  ")
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return ExitIOError
		}
		fmt.Fprintln(out, string(data))
		return 0
	case "extract":
		dir, err := l.EnsureModules(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return ExitCode(err)
		}
		fmt.Fprintln(out, dir)
		return 0
	case "run":
		code, err := l.Run(ctx, args[1:])
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		return code
	case "help", "--help":
		fmt.Fprintln(out, "Bundle Launcher - CLI Mode")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  info           Show bundle information (default)")
		fmt.Fprintln(out, "  verify         Verify seal and archive checksum")
		fmt.Fprintln(out, "  manifest       Print the launch manifest")
		fmt.Fprintln(out, "  extract        Extract modules and print their directory")
		fmt.Fprintln(out, "  run [args...]  Run the bundle with arguments")
		fmt.Fprintln(out, "  help           Show this help message")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Usage:\n  %s=1 %s <command>\n", CLIEnv, l.bundle.Manifest.Executable)
		return 0
	default:
		fmt.Fprintf(out, "Error: Unknown command '%s'\n", args[0])
		fmt.Fprintln(out, "Available commands: info, verify, manifest, extract, run, help")
		return ExitInvalidArgs
	}
}

// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// LauncherBinEnv points at the launcher executable.
const LauncherBinEnv = "FLAVOR_LAUNCHER_BIN"

// LauncherName is the launcher binary shipped next to the builder.
const LauncherName = "flavor-bundle-launcher"

// FindLauncher locates the launcher binary. Priority: explicit path,
// FLAVOR_LAUNCHER_BIN, a launcher next to the running executable, then
// PATH.
func FindLauncher(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(LauncherBinEnv)
	}
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("launcher binary %s: %w", explicit, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("launcher binary %s is a directory", explicit)
		}
		return explicit, nil
	}

	name := LauncherName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", errors.New("launcher binary not found: use --launcher-bin or " + LauncherBinEnv)
}

// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs the permission and existence checks only.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

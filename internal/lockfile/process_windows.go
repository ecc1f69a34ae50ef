// SPDX-License-Identifier: Apache-2.0

//go:build windows

package lockfile

import "golang.org/x/sys/windows"

const stillActive = 259

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

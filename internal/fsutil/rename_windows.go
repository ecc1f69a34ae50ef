// SPDX-License-Identifier: Apache-2.0

//go:build windows

package fsutil

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/windows"
)

// Rename moves src to dst with MoveFileEx, retrying while another process
// holds a handle on either path. An existing regular file at dst is
// replaced; directories must not exist at dst.
func Rename(src, dst string, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	from, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return fmt.Errorf("failed to convert source path to UTF-16: %w", err)
	}
	to, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return fmt.Errorf("failed to convert dest path to UTF-16: %w", err)
	}

	var flags uint32 = windows.MOVEFILE_WRITE_THROUGH
	if info, err := os.Stat(src); err == nil && !info.IsDir() {
		flags |= windows.MOVEFILE_REPLACE_EXISTING
	}

	const maxAttempts = 3
	delay := 50 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = windows.MoveFileEx(from, to, flags)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("failed to rename %s after %d attempts: %w", src, maxAttempts, err)
		}
		logger.Debug("Retrying rename (Windows file lock)", "attempt", attempt, "next_delay_ms", delay.Milliseconds(), "error", err)
		time.Sleep(delay)
		delay *= 2
	}
}

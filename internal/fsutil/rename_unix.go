// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package fsutil

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Rename moves src to dst. On Unix os.Rename is atomic within a filesystem.
func Rename(src, dst string, logger hclog.Logger) error {
	if logger != nil {
		logger.Trace("Renaming", "source", src, "dest", dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", src, err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package workenv

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// DiskSpaceMultiplier is applied to the compressed archive size when the
// uncompressed size is unknown.
const DiskSpaceMultiplier = 2

// ErrInsufficientDiskSpace is returned by CheckDiskSpace.
var ErrInsufficientDiskSpace = errors.New("insufficient disk space")

// SpaceNeeded estimates the bytes an extraction will occupy.
func SpaceNeeded(rawSize, compressedSize int64) int64 {
	return max(rawSize, compressedSize*DiskSpaceMultiplier)
}

// CheckDiskSpace fails when the filesystem holding dir has less than needed
// bytes available. A filesystem that cannot be queried passes.
func CheckDiskSpace(dir string, needed int64, logger hclog.Logger) error {
	logger = logging.OrNull(logger)
	available, err := availableDiskSpace(dir)
	if err != nil {
		logger.Warn("⚠️ Could not check disk space", "path", dir, "error", err)
		return nil
	}

	neededMB := float64(needed) / (1024 * 1024)
	availableMB := float64(available) / (1024 * 1024)
	logger.Debug("💾 Disk space check", "needed_mb", fmt.Sprintf("%.1f", neededMB), "available_mb", fmt.Sprintf("%.1f", availableMB))
	if available < needed {
		return fmt.Errorf("%w: need %.1f MB, have %.1f MB in %s", ErrInsufficientDiskSpace, neededMB, availableMB, dir)
	}
	return nil
}

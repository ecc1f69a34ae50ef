// SPDX-License-Identifier: Apache-2.0

package workenv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpaceNeeded(t *testing.T) {
	assert.Equal(t, int64(1000), SpaceNeeded(1000, 300))
	assert.Equal(t, int64(800), SpaceNeeded(0, 400))
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckDiskSpace(dir, 1, nil))
	assert.ErrorIs(t, CheckDiskSpace(dir, math.MaxInt64, nil), ErrInsufficientDiskSpace)
}

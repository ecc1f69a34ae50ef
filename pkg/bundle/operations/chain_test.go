// SPDX-License-Identifier: Apache-2.0

package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	testCases := []struct {
		input    string
		expected []uint8
	}{
		{"tar", []uint8{OpTar}},
		{"tar.gz", []uint8{OpTar, OpGzip}},
		{"TGZ", []uint8{OpTar, OpGzip}},
		{"tar.bz2", []uint8{OpTar, OpBzip2}},
		{"tar.zst", []uint8{OpTar, OpZstd}},
		{"tar|gzip", []uint8{OpTar, OpGzip}},
		{" tar | zstd ", []uint8{OpTar, OpZstd}},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			ops, err := ParseChain(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ops)
		})
	}
}

func TestParseChainRejects(t *testing.T) {
	for _, input := range []string{"", "raw", "gzip", "gzip|tar", "tar|tar", "tar|xz", "zip"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseChain(input)
			assert.Error(t, err)
		})
	}
}

func TestParsedChainIsACopy(t *testing.T) {
	ops, err := ParseChain("tar.gz")
	require.NoError(t, err)
	ops[1] = OpZstd

	again, err := ParseChain("tar.gz")
	require.NoError(t, err)
	assert.Equal(t, []uint8{OpTar, OpGzip}, again)
}

func TestChainFor(t *testing.T) {
	ops, err := ChainFor(false, "zstd")
	require.NoError(t, err)
	assert.Equal(t, []uint8{OpTar}, ops)

	ops, err = ChainFor(true, "bzip2")
	require.NoError(t, err)
	assert.Equal(t, []uint8{OpTar, OpBzip2}, ops)

	_, err = ChainFor(true, "lz4")
	assert.Error(t, err)
}

func TestChainStringAndExtension(t *testing.T) {
	assert.Equal(t, "tar.gz", ChainString([]uint8{OpTar, OpGzip}))
	assert.Equal(t, ".tar.zst", Extension([]uint8{OpTar, OpZstd}))
	assert.Equal(t, ".tar", Extension([]uint8{OpTar}))
	assert.Equal(t, "tar|gzip|zstd", ChainString([]uint8{OpTar, OpGzip, OpZstd}))
	assert.Equal(t, ".tar.bin", Extension([]uint8{OpTar, OpGzip, OpZstd}))
}

func TestGetUnknown(t *testing.T) {
	_, err := Get(0x7f)
	assert.ErrorContains(t, err, "unknown operation: 0x7f")
	assert.Equal(t, "UNKNOWN_7f", GetName(0x7f))
}

// SPDX-License-Identifier: Apache-2.0

package pe

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticPE builds the smallest header layout the subsystem patch reads:
// DOS header, PE signature, COFF header and an optional header prefix.
func syntheticPE(magic, subsystem uint16) []byte {
	const peOffset = 0x80
	data := make([]byte, peOffset+4+20+240)
	data[0], data[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(data[0x3C:], peOffset)
	copy(data[peOffset:], []byte{'P', 'E', 0, 0})
	opt := peOffset + 4 + 20
	binary.LittleEndian.PutUint16(data[opt:], magic)
	binary.LittleEndian.PutUint32(data[opt+checksumOffset:], 0xdeadbeef)
	binary.LittleEndian.PutUint16(data[opt+subsystemOffset:], subsystem)
	return data
}

func TestSetSubsystem(t *testing.T) {
	for _, magic := range []uint16{optionalHeaderMagicPE32, optionalHeaderMagicPE32Plus} {
		data := syntheticPE(magic, SubsystemConsole)

		changed, err := SetSubsystem(data, false)
		require.NoError(t, err)
		assert.True(t, changed)
		got, err := Subsystem(data)
		require.NoError(t, err)
		assert.Equal(t, SubsystemGUI, got)
		assert.Zero(t, binary.LittleEndian.Uint32(data[0x80+24+checksumOffset:]))

		changed, err = SetSubsystem(data, false)
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = SetSubsystem(data, true)
		require.NoError(t, err)
		assert.True(t, changed)
		got, err = Subsystem(data)
		require.NoError(t, err)
		assert.Equal(t, SubsystemConsole, got)
	}
}

func TestSetSubsystemRejects(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"not MZ", []byte("\x7fELF not a pe file at all, padded out to be long enough for the header checks....")},
		{"short", []byte("MZ")},
		{"bad signature", func() []byte {
			d := syntheticPE(optionalHeaderMagicPE32Plus, SubsystemConsole)
			d[0x80] = 'X'
			return d
		}()},
		{"bad magic", syntheticPE(0x1234, SubsystemConsole)},
		{"native subsystem", syntheticPE(optionalHeaderMagicPE32Plus, 1)},
		{"offset past end", func() []byte {
			d := syntheticPE(optionalHeaderMagicPE32Plus, SubsystemConsole)
			binary.LittleEndian.PutUint32(d[0x3C:], 0xFFFF)
			return d
		}()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SetSubsystem(tc.data, false)
			assert.Error(t, err)
		})
	}
}

func TestPrepareRejectsNonPE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher")
	original := []byte("#!/bin/sh\necho not a PE\n")
	require.NoError(t, os.WriteFile(path, original, 0o755))

	assert.Error(t, Prepare(path, Options{Console: true}, nil))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, got, "file is untouched on failure")
}

func TestNumericVersion(t *testing.T) {
	testCases := map[string]string{
		"1.2.3":     "1.2.3",
		"0.0.1":     "0.0.1",
		"1.2.0-rc1": "1.2.0",
		"2.0+build": "2.0",
		"v1.0":      "",
		"3.":        "3",
	}
	for in, want := range testCases {
		assert.Equal(t, want, numericVersion(in), in)
	}
}

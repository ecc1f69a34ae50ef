// SPDX-License-Identifier: Apache-2.0

// Package pe prepares Windows launcher executables: it selects the console
// or windowed subsystem in the PE optional header and embeds icon and
// version resources.
package pe

import (
	"encoding/binary"
	"fmt"
)

// Windows subsystem values.
const (
	SubsystemGUI     uint16 = 2
	SubsystemConsole uint16 = 3
)

const (
	optionalHeaderMagicPE32     = 0x10B
	optionalHeaderMagicPE32Plus = 0x20B

	// Field offsets inside the optional header; identical for PE32 and PE32+.
	checksumOffset  = 64
	subsystemOffset = 68
)

// IsPE reports whether data starts with the "MZ" DOS signature.
func IsPE(data []byte) bool {
	return len(data) >= 2 && data[0] == 'M' && data[1] == 'Z'
}

// HeaderOffset reads e_lfanew from the DOS header and checks the PE
// signature it points at.
func HeaderOffset(data []byte) (int, error) {
	if len(data) < 0x40 {
		return 0, fmt.Errorf("data too short to contain DOS header")
	}
	peOffset := int(binary.LittleEndian.Uint32(data[0x3C:0x40]))
	if peOffset < 0x40 || len(data) < peOffset+4 {
		return 0, fmt.Errorf("data too short to contain PE header at offset 0x%x", peOffset)
	}
	if sig := data[peOffset : peOffset+4]; sig[0] != 'P' || sig[1] != 'E' || sig[2] != 0 || sig[3] != 0 {
		return 0, fmt.Errorf("invalid PE signature at offset 0x%x: expected 'PE\\x00\\x00', got %v", peOffset, sig)
	}
	return peOffset, nil
}

// optionalHeader returns the file offset of the optional header.
func optionalHeader(data []byte) (int, error) {
	if !IsPE(data) {
		return 0, fmt.Errorf("not a PE executable (missing MZ signature)")
	}
	peOffset, err := HeaderOffset(data)
	if err != nil {
		return 0, err
	}
	opt := peOffset + 4 + 20
	if len(data) < opt+subsystemOffset+2 {
		return 0, fmt.Errorf("data too short to contain optional header")
	}
	switch magic := binary.LittleEndian.Uint16(data[opt : opt+2]); magic {
	case optionalHeaderMagicPE32, optionalHeaderMagicPE32Plus:
	default:
		return 0, fmt.Errorf("unknown optional header magic 0x%x", magic)
	}
	return opt, nil
}

// Subsystem returns the subsystem field of a PE image.
func Subsystem(data []byte) (uint16, error) {
	opt, err := optionalHeader(data)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data[opt+subsystemOffset:]), nil
}

// SetSubsystem patches data in place to the console or GUI subsystem and
// zeroes the image checksum, which the loader ignores for executables.
// It reports whether anything changed.
func SetSubsystem(data []byte, console bool) (bool, error) {
	opt, err := optionalHeader(data)
	if err != nil {
		return false, err
	}
	want := SubsystemGUI
	if console {
		want = SubsystemConsole
	}
	current := binary.LittleEndian.Uint16(data[opt+subsystemOffset:])
	if current == want {
		return false, nil
	}
	if current != SubsystemGUI && current != SubsystemConsole {
		return false, fmt.Errorf("refusing to patch unexpected subsystem %d", current)
	}
	binary.LittleEndian.PutUint16(data[opt+subsystemOffset:], want)
	binary.LittleEndian.PutUint32(data[opt+checksumOffset:], 0)
	return true, nil
}

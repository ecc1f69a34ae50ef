// SPDX-License-Identifier: Apache-2.0

// Package permissions parses the octal mode strings accepted on data mappings.
package permissions

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// Default modes for files written into a bundle.
const (
	DefaultFilePerms       fs.FileMode = 0o644
	DefaultExecutablePerms fs.FileMode = 0o755
	DefaultDirPerms        fs.FileMode = 0o755
)

// ParseOctal parses "755", "0755" or "0o755". An empty string yields ok=false
// so callers can keep the source file's own mode.
func ParseOctal(s string) (mode fs.FileMode, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0")
	if digits == "" {
		return 0, true, nil
	}
	val, err := strconv.ParseUint(digits, 8, 32)
	if err != nil || val > 0o7777 {
		return 0, false, fmt.Errorf("invalid permission string %q", s)
	}
	return fs.FileMode(val), true, nil
}

// FormatOctal renders a mode the way descriptors spell it.
func FormatOctal(mode fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(mode.Perm()))
}

// IsExecutable reports whether the owner execute bit is set.
func IsExecutable(mode fs.FileMode) bool {
	return mode&0o100 != 0
}

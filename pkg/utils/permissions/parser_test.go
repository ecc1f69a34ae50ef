// SPDX-License-Identifier: Apache-2.0

package permissions

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOctal(t *testing.T) {
	tests := []struct {
		in   string
		want fs.FileMode
		ok   bool
	}{
		{in: "", want: 0, ok: false},
		{in: "755", want: 0o755, ok: true},
		{in: "0644", want: 0o644, ok: true},
		{in: "0o600", want: 0o600, ok: true},
		{in: "0", want: 0, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok, err := ParseOctal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOctal_Invalid(t *testing.T) {
	for _, in := range []string{"rwx", "0999", "77777"} {
		_, _, err := ParseOctal(in)
		assert.Error(t, err, in)
	}
}

func TestFormatOctal(t *testing.T) {
	assert.Equal(t, "0755", FormatOctal(0o755))
	assert.True(t, IsExecutable(0o700))
	assert.False(t, IsExecutable(0o644))
}

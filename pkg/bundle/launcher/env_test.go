// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"errors"
	"os"
	"testing"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/stretchr/testify/assert"
)

var manifestSeed = manifest.KeyOptions{Seed: "launcher-tests"}

func TestEnv(t *testing.T) {
	env := NewEnv([]string{"A=1", "B=two=2", "broken", "=skip"})
	v, ok := env.Get("B")
	assert.True(t, ok)
	assert.Equal(t, "two=2", v)

	env.Set("A", "override")
	env.PrependPath("PYTHONPATH", "/m")
	env.PrependPath("PYTHONPATH", "/first")
	assert.Equal(t, []string{
		"A=override",
		"B=two=2",
		"PYTHONPATH=/first" + string(os.PathListSeparator) + "/m",
	}, env.List())
}

func TestPlaceholders(t *testing.T) {
	ph := Placeholders{Bundle: "/opt/app", Modules: "/cache/m/abc", Exe: "/opt/app/app"}
	assert.Equal(t, "/opt/app/playwright/ms-playwright", ph.Expand("{bundle}/playwright/ms-playwright"))
	assert.Equal(t, "/cache/m/abc:/opt/app/app", ph.Expand("{modules}:{exe}"))
	assert.Equal(t, "{other}", ph.Expand("{other}"))
}

func TestParseAssignments(t *testing.T) {
	out := []byte("KEY=value\nexport QUOTED=\"a b\"\nSINGLE='x'\nnot an assignment\n1BAD=x\n  SPACED=ok  \n")
	assert.Equal(t, [][2]string{
		{"KEY", "value"},
		{"QUOTED", "a b"},
		{"SINGLE", "x"},
		{"SPACED", "ok"},
	}, ParseAssignments(out))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitExecutionError, ExitCode(errors.New("plain")))
	err := withCode(ExitHookError, errors.New("hook"))
	assert.Equal(t, ExitHookError, ExitCode(err))
	assert.Equal(t, ExitHookError, ExitCode(withCode(ExitIOError, err)))
}

func TestValidationLevelFromEnv(t *testing.T) {
	t.Setenv(ValidationEnv, "")
	assert.Equal(t, ValidationStandard, ValidationLevelFromEnv())
	t.Setenv(ValidationEnv, "NONE")
	assert.Equal(t, ValidationNone, ValidationLevelFromEnv())
	assert.Equal(t, "none", ValidationNone.String())
}

func TestCLIEnabled(t *testing.T) {
	for val, want := range map[string]bool{"": false, "1": true, "yes": true, "false": false, "junk": false} {
		t.Setenv(CLIEnv, val)
		assert.Equal(t, want, CLIEnabled(), val)
	}
}

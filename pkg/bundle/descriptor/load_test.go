// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

var formats = map[string]string{
	"main_diff.hcl": `
output_name     = "main_diff"
entry_point     = "main_diff.py"
forced_modules  = ["services.diff", "helpers"]
module_path_env = "PYTHONPATH"
console_mode    = false

data {
  source = "config.ini"
}

data {
  source = "data/config"
  dest   = "data/config"
  mode   = "0600"
}

hook {
  env = { BROWSERS = "{bundle}/browsers" }
}

hook {
  script = "hooks/assets.py"
}
`,
	"main_diff.toml": `
output_name = "main_diff"
entry_point = "main_diff.py"
forced_modules = ["services.diff", "helpers"]
module_path_env = "PYTHONPATH"
console_mode = false

[[data_mappings]]
source = "config.ini"
dest = ""

[[data_mappings]]
source = "data/config"
dest = "data/config"
mode = "0600"

[[runtime_hooks]]
env = { BROWSERS = "{bundle}/browsers" }

[[runtime_hooks]]
script = "hooks/assets.py"
`,
	"main_diff.yaml": `
output_name: main_diff
entry_point: main_diff.py
forced_modules: [services.diff, helpers]
module_path_env: PYTHONPATH
console_mode: false
data_mappings:
  - [config.ini, ""]
  - {source: data/config, dest: data/config, mode: "0600"}
runtime_hooks:
  - env: {BROWSERS: "{bundle}/browsers"}
  - script: hooks/assets.py
`,
	"main_diff.json": `{
  "output_name": "main_diff",
  "entry_point": "main_diff.py",
  "forced_modules": ["services.diff", "helpers"],
  "module_path_env": "PYTHONPATH",
  "console_mode": false,
  "data_mappings": [
    ["config.ini", ""],
    {"source": "data/config", "dest": "data/config", "mode": "0600"}
  ],
  "runtime_hooks": [
    {"env": {"BROWSERS": "{bundle}/browsers"}},
    {"script": "hooks/assets.py"}
  ]
}`,
}

func TestFormatsDecodeToSameDescriptor(t *testing.T) {
	dir := t.TempDir()

	want := &Descriptor{
		Name:        "main_diff",
		Version:     DefaultVersion,
		EntryPoint:  filepath.Join(dir, "main_diff.py"),
		WorkingRoot: dir,
		DataMappings: []DataMapping{
			{Source: filepath.Join(dir, "config.ini")},
			{Source: filepath.Join(dir, "data", "config"), Dest: "data/config", Mode: "0600"},
		},
		ForcedModules: []string{"services.diff", "helpers"},
		RuntimeHooks: []Hook{
			{Env: map[string]string{"BROWSERS": "{bundle}/browsers"}},
			{Script: filepath.Join(dir, "hooks", "assets.py")},
		},
		OutputName:    "main_diff",
		ConsoleMode:   false,
		Compress:      true,
		Compression:   DefaultCompression,
		ModulePathEnv: "PYTHONPATH",
		Walker:        DefaultWalker,
	}

	for name, content := range formats {
		t.Run(filepath.Ext(name), func(t *testing.T) {
			p := writeFile(t, dir, name, content)
			d, err := Load(p)
			require.NoError(t, err)

			want.Fragments = []string{p}
			assert.Equal(t, want, d)
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	p := writeFile(t, t.TempDir(), "main.ini", "output_name=x\n")
	_, err := Load(p)
	assert.ErrorIs(t, err, bundleerrors.ErrUnsupportedFormat)
}

func TestUnknownFieldRejected(t *testing.T) {
	p := writeFile(t, t.TempDir(), "main.json", `{"output_name": "x", "entry_point": "x.py", "ouput_dir": "y"}`)
	_, err := Load(p)
	assert.Error(t, err)
}

func TestRequiredFields(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(writeFile(t, dir, "a.json", `{"entry_point": "x.py"}`))
	assert.ErrorIs(t, err, bundleerrors.ErrInvalidDescriptor)

	_, err = Load(writeFile(t, dir, "b.json", `{"output_name": "x"}`))
	assert.ErrorIs(t, err, bundleerrors.ErrInvalidDescriptor)
}

func TestExtendsComposition(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base/common.toml", `
entry_point = "main.py"
forced_modules = ["shared", "helpers"]
exclude_modules = ["tests"]
compression = "zstd"

[env]
MODE = "base"
KEEP = "yes"

[[data_mappings]]
source = "config.ini"
dest = ""

[[runtime_hooks]]
env = { FIRST = "1" }
`)
	p := writeFile(t, dir, "variants/diff.yaml", `
extends: [../base/common.toml]
output_name: diff
forced_modules: [helpers, diff_only]
env: {MODE: variant}
data_mappings:
  - [extra.txt, docs]
runtime_hooks:
  - script: hook.sh
`)

	d, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "base", "common.toml"), p}, d.Fragments)
	assert.Equal(t, "diff", d.OutputName)
	assert.Equal(t, filepath.Join(dir, "base", "main.py"), d.EntryPoint, "base paths resolve against the base fragment")
	assert.Equal(t, filepath.Join(dir, "variants"), d.WorkingRoot, "working root follows the last fragment")
	assert.Equal(t, "zstd", d.Compression)
	assert.Equal(t, []string{"shared", "helpers", "diff_only"}, d.ForcedModules)
	assert.Equal(t, []string{"tests"}, d.ExcludeModules)
	assert.Equal(t, map[string]string{"MODE": "variant", "KEEP": "yes"}, d.Env)
	assert.Equal(t, []DataMapping{
		{Source: filepath.Join(dir, "base", "config.ini")},
		{Source: filepath.Join(dir, "variants", "extra.txt"), Dest: "docs"},
	}, d.DataMappings)
	require.Len(t, d.RuntimeHooks, 2)
	assert.Equal(t, HookEnv, d.RuntimeHooks[0].Kind())
	assert.Equal(t, filepath.Join(dir, "variants", "hook.sh"), d.RuntimeHooks[1].Script)
}

func TestExtendsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"extends": ["b.json"], "output_name": "a", "entry_point": "a.py"}`)
	writeFile(t, dir, "b.json", `{"extends": ["a.json"]}`)

	_, err := Load(filepath.Join(dir, "a.json"))
	assert.ErrorIs(t, err, bundleerrors.ErrCyclicDescriptor)
}

func TestExtendsDiamondIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "root.json", `{"entry_point": "main.py", "forced_modules": ["r"]}`)
	writeFile(t, dir, "left.json", `{"extends": ["root.json"]}`)
	writeFile(t, dir, "right.json", `{"extends": ["root.json"]}`)
	p := writeFile(t, dir, "top.json", `{"extends": ["left.json", "right.json"], "output_name": "top"}`)

	d, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, d.ForcedModules)
	assert.Len(t, d.Fragments, 5)
}

func TestMissingExtendsTarget(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.json", `{"extends": ["nope.json"], "output_name": "a", "entry_point": "a.py"}`)
	_, err := Load(p)
	assert.ErrorIs(t, err, bundleerrors.ErrMissingSource)
}

func TestHCLFunctionsAndPlatform(t *testing.T) {
	t.Setenv("BUNDLE_FLAVOUR", "Diff")
	p := writeFile(t, t.TempDir(), "main.hcl", `
output_name = lower(env.BUNDLE_FLAVOUR)
entry_point = "main.py"
description = format("built for %s", platform.os)
`)
	d, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "diff", d.OutputName)
	assert.Contains(t, d.Description, "built for ")
}

func TestPairFormTooLong(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.json", `{"output_name": "a", "entry_point": "a.py", "data_mappings": [["a", "b", "c"]]}`)
	_, err := Load(p)
	assert.Error(t, err)
}

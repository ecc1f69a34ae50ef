// SPDX-License-Identifier: Apache-2.0

// Package descriptor defines the bundle descriptor: the declarative record of
// what goes into one distributable application variant and how its launcher
// behaves at start.
//
// A descriptor file is authored once per variant, written in HCL, TOML, YAML
// or JSON, and may extend other descriptor files. Loading resolves every
// relative source path against the fragment that declared it, so composed
// descriptors never change meaning depending on who includes them.
package descriptor

import (
	"path/filepath"
	"runtime"
	"slices"
	"sort"
)

// Defaults applied when a descriptor leaves a field unset.
const (
	DefaultVersion     = "0.0.1"
	DefaultCompression = "gzip"
	DefaultWalker      = WalkerImports
)

// Walker selectors.
const (
	WalkerImports = "imports"
	WalkerNone    = "none"
	// WalkerCommandPrefix introduces an external walker: "command:<cmd>".
	WalkerCommandPrefix = "command:"
)

// Paths inside a bundle that data mappings may not claim.
const (
	BundleDir    = "_bundle"
	ManifestFile = "manifest.json"
)

// Descriptor is a fully loaded and composed bundle descriptor. All source
// paths (entry point, mapping sources, hook scripts, module paths, icon) are
// absolute.
type Descriptor struct {
	// Fragments lists the descriptor files that contributed, base first.
	Fragments []string

	Name        string
	Version     string
	Description string

	EntryPoint  string
	WorkingRoot string

	DataMappings   []DataMapping
	ForcedModules  []string
	ExcludeModules []string
	RuntimeHooks   []Hook

	OutputName  string
	ConsoleMode bool
	Compress    bool
	Strip       bool
	Compression string

	Interpreter   string
	ModulePaths   []string
	ModulePathEnv string
	Walker        string
	Icon          string
	Env           map[string]string
}

// DataMapping copies Source (a file or a directory tree) into the bundle
// directory Dest. Files land at Dest/<basename>; directory contents land
// directly under Dest. An empty Dest is the bundle root.
type DataMapping struct {
	Source string
	Dest   string
	// Mode optionally overrides file permissions ("0644").
	Mode string
}

// HookKind distinguishes script hooks from declarative environment hooks.
type HookKind string

const (
	HookScript HookKind = "script"
	HookEnv    HookKind = "env"
)

// Hook runs once at launcher start, before the entry point. A script hook is
// executed by the interpreter and may emit KEY=VALUE lines; an env hook sets
// variables directly.
type Hook struct {
	Script string
	Env    map[string]string
}

// Kind reports which flavour of hook this is.
func (h Hook) Kind() HookKind {
	if h.Script != "" {
		return HookScript
	}
	return HookEnv
}

// ExecutableName is the launcher file name for the current platform.
func (d *Descriptor) ExecutableName() string {
	return ExecutableNameFor(d.OutputName, runtime.GOOS)
}

// ExecutableNameFor returns the launcher file name for goos.
func ExecutableNameFor(outputName, goos string) string {
	if goos == "windows" {
		return outputName + ".exe"
	}
	return outputName
}

// SearchRoots returns the module search roots, working root first.
func (d *Descriptor) SearchRoots() []string {
	roots := []string{d.WorkingRoot}
	for _, p := range d.ModulePaths {
		if !slices.Contains(roots, p) {
			roots = append(roots, p)
		}
	}
	return roots
}

// EntryArchivePath is where the entry point lives inside the module archive.
func (d *Descriptor) EntryArchivePath() string {
	if rel, err := filepath.Rel(d.WorkingRoot, d.EntryPoint); err == nil && filepath.IsLocal(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(d.EntryPoint)
}

// ResolveForcedModules returns the union of forced modules declared by the
// given descriptors, sorted and deduplicated. No discovery happens here.
func ResolveForcedModules(ds ...*Descriptor) []string {
	seen := map[string]struct{}{}
	for _, d := range ds {
		if d == nil {
			continue
		}
		for _, m := range d.ForcedModules {
			if m != "" {
				seen[m] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

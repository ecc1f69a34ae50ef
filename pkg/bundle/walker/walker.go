// SPDX-License-Identifier: Apache-2.0

// Package walker discovers the modules a bundle entry point depends on.
//
// Discovery is pluggable. The default ImportScanner reads import statements
// statically; CommandWalker delegates to an external tool; None archives the
// entry point alone. Forced modules fill the gaps any walker leaves, and are
// located with Resolve.
package walker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
)

// ModuleSuffix is the source suffix of a module file.
const ModuleSuffix = ".py"

// Module is a discovered or forced module.
type Module struct {
	// ID is the dotted module identifier ("services.transfer").
	ID string
	// Path is the absolute source file.
	Path string
	// Root is the search root the module was found under.
	Root string
	// Entry marks the bundle entry point.
	Entry bool
}

// ArchivePath is the slash-separated location of the module inside the
// archive: its path relative to its search root.
func (m Module) ArchivePath() string {
	if rel, err := filepath.Rel(m.Root, m.Path); err == nil && filepath.IsLocal(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(m.Path)
}

// Walker discovers the modules reachable from entry. Seeds are additional
// files whose imports count as reachable but which are not returned
// themselves (runtime hook scripts).
type Walker interface {
	Discover(ctx context.Context, entry string, seeds ...string) ([]Module, error)
}

// Expander is implemented by walkers that can follow the imports of modules
// supplied from outside discovery, such as forced modules.
type Expander interface {
	Expand(ctx context.Context, start []Module) ([]Module, error)
}

// ForDescriptor builds the walker selected by d.Walker.
func ForDescriptor(d *descriptor.Descriptor, logger hclog.Logger) (Walker, error) {
	roots := d.SearchRoots()
	switch {
	case d.Walker == "" || d.Walker == descriptor.WalkerImports:
		return NewImportScanner(roots, logger), nil
	case d.Walker == descriptor.WalkerNone:
		return &None{Roots: roots}, nil
	case strings.HasPrefix(d.Walker, descriptor.WalkerCommandPrefix):
		return NewCommandWalker(strings.TrimPrefix(d.Walker, descriptor.WalkerCommandPrefix), roots, logger)
	default:
		return nil, fmt.Errorf("unknown walker %q", d.Walker)
	}
}

// None returns only the entry point.
type None struct {
	Roots []string
}

func (n *None) Discover(_ context.Context, entry string, _ ...string) ([]Module, error) {
	return []Module{EntryModule(entry, n.Roots)}, nil
}

// EntryModule describes the entry file relative to the first root that
// contains it, or to its own directory.
func EntryModule(entry string, roots []string) Module {
	root := rootFor(entry, roots)
	m := Module{Path: entry, Root: root, Entry: true}
	m.ID = idFromPath(m.ArchivePath())
	return m
}

func rootFor(path string, roots []string) string {
	for _, r := range roots {
		if rel, err := filepath.Rel(r, path); err == nil && filepath.IsLocal(rel) {
			return r
		}
	}
	return filepath.Dir(path)
}

func idFromPath(archivePath string) string {
	p := strings.TrimSuffix(archivePath, ModuleSuffix)
	p = strings.TrimSuffix(p, "/__init__")
	return strings.ReplaceAll(p, "/", ".")
}

// Resolve locates id under roots, trying <root>/a/b.py and then
// <root>/a/b/__init__.py in each root in order.
func Resolve(id string, roots []string) (Module, bool) {
	if id == "" || strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".") || strings.Contains(id, "..") {
		return Module{}, false
	}
	rel := filepath.Join(strings.Split(id, ".")...)
	for _, root := range roots {
		for _, candidate := range []string{rel + ModuleSuffix, filepath.Join(rel, "__init__"+ModuleSuffix)} {
			p := filepath.Join(root, candidate)
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return Module{ID: id, Path: p, Root: root}, true
			}
		}
	}
	return Module{}, false
}

// ResolveForced locates every forced module id. All unresolvable ids are
// reported together.
func ResolveForced(ids []string, roots []string) ([]Module, error) {
	var out []Module
	var missing []error
	for _, id := range ids {
		m, ok := Resolve(id, roots)
		if !ok {
			missing = append(missing, &bundleerrors.ModuleError{ID: id})
			continue
		}
		out = append(out, m)
		out = append(out, parents(m)...)
	}
	if len(missing) > 0 {
		return out, errors.Join(missing...)
	}
	return out, nil
}

// parents returns the package __init__ files above m inside its root.
func parents(m Module) []Module {
	parts := strings.Split(m.ID, ".")
	var out []Module
	for i := 1; i < len(parts); i++ {
		id := strings.Join(parts[:i], ".")
		p := filepath.Join(m.Root, filepath.Join(parts[:i]...), "__init__"+ModuleSuffix)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, Module{ID: id, Path: p, Root: m.Root})
		}
	}
	return out
}

// Exclude drops modules whose ID equals or is nested under an excluded id.
// The entry point is never dropped.
func Exclude(mods []Module, excluded []string) []Module {
	if len(excluded) == 0 {
		return mods
	}
	out := mods[:0:0]
	for _, m := range mods {
		if !m.Entry && isExcluded(m.ID, excluded) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func isExcluded(id string, excluded []string) bool {
	for _, ex := range excluded {
		if id == ex || strings.HasPrefix(id, ex+".") {
			return true
		}
	}
	return false
}

// Merge combines module lists, keeping the first module for each archive
// path, and sorts the result with the entry point first.
func Merge(lists ...[]Module) []Module {
	seen := map[string]int{}
	var out []Module
	for _, list := range lists {
		for _, m := range list {
			key := m.ArchivePath()
			if i, ok := seen[key]; ok {
				out[i].Entry = out[i].Entry || m.Entry
				continue
			}
			seen[key] = len(out)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Entry != out[j].Entry {
			return out[i].Entry
		}
		return out[i].ArchivePath() < out[j].ArchivePath()
	})
	return out
}

// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pelletier/go-toml/v2"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Loader reads descriptor files. The zero value is not usable; use
// NewLoader.
type Loader struct {
	fs     afero.Fs
	logger hclog.Logger
}

// NewLoader creates a loader over fsys (the OS filesystem when nil).
func NewLoader(fsys afero.Fs, logger hclog.Logger) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{fs: fsys, logger: logging.OrNull(logger)}
}

// Load reads the descriptor at path with the OS filesystem.
func Load(path string) (*Descriptor, error) {
	return NewLoader(nil, nil).Load(path)
}

// Load reads the descriptor at path, follows its extends chain and returns
// the composed result.
func (l *Loader) Load(path string) (*Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor path %s: %w", path, err)
	}

	merged := &rawDescriptor{}
	var fragments []string
	if err := l.loadInto(abs, merged, &fragments, map[string]bool{}); err != nil {
		return nil, err
	}

	d := finalize(merged)
	d.Fragments = fragments
	if d.OutputName == "" {
		return nil, fmt.Errorf("%w: %s: output_name is required", bundleerrors.ErrInvalidDescriptor, abs)
	}
	if d.EntryPoint == "" {
		return nil, fmt.Errorf("%w: %s: entry_point is required", bundleerrors.ErrInvalidDescriptor, abs)
	}
	l.logger.Debug("📄 Descriptor loaded", "path", abs, "output_name", d.OutputName,
		"fragments", len(fragments), "data_mappings", len(d.DataMappings), "hooks", len(d.RuntimeHooks))
	return d, nil
}

// loadInto merges path, preceded by everything it extends, into merged.
// visiting holds the current chain for cycle detection.
func (l *Loader) loadInto(path string, merged *rawDescriptor, fragments *[]string, visiting map[string]bool) error {
	if visiting[path] {
		return fmt.Errorf("%w: %s", bundleerrors.ErrCyclicDescriptor, path)
	}
	visiting[path] = true
	defer delete(visiting, path)

	raw, err := l.decodeFile(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	for _, base := range raw.Extends {
		if !filepath.IsAbs(base) {
			base = filepath.Join(dir, base)
		}
		if err := l.loadInto(filepath.Clean(base), merged, fragments, visiting); err != nil {
			return err
		}
	}

	absolutize(raw, dir)
	merge(merged, raw)
	*fragments = append(*fragments, path)
	return nil
}

func (l *Loader) decodeFile(path string) (*rawDescriptor, error) {
	src, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, &bundleerrors.SourceError{Role: "descriptor", Path: path, Err: err}
	}
	l.logger.Trace("Decoding descriptor fragment", "path", path, "size", len(src))
	return decode(path, src)
}

// decode parses a single descriptor fragment, picking the format from the
// file extension.
func decode(path string, src []byte) (*rawDescriptor, error) {
	raw := &rawDescriptor{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		return decodeHCL(path, src)
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(src))
		dec.DisallowUnknownFields()
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("failed to decode TOML descriptor %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(src))
		dec.KnownFields(true)
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("failed to decode YAML descriptor %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(src))
		dec.DisallowUnknownFields()
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("failed to decode JSON descriptor %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q (%s)", bundleerrors.ErrUnsupportedFormat, ext, path)
	}
	return raw, nil
}

// absolutize resolves the fragment's relative paths. working_root is relative
// to the fragment's directory; every other source path is relative to the
// fragment's working root.
func absolutize(raw *rawDescriptor, dir string) {
	root := dir
	if raw.WorkingRoot != nil {
		root = resolve(dir, *raw.WorkingRoot)
		raw.WorkingRoot = &root
	}

	if raw.EntryPoint != nil {
		v := resolve(root, *raw.EntryPoint)
		raw.EntryPoint = &v
	}
	if raw.Icon != nil && *raw.Icon != "" {
		v := resolve(root, *raw.Icon)
		raw.Icon = &v
	}
	for i := range raw.DataMappings {
		raw.DataMappings[i].Source = resolve(root, raw.DataMappings[i].Source)
	}
	for i := range raw.RuntimeHooks {
		if raw.RuntimeHooks[i].Script != "" {
			raw.RuntimeHooks[i].Script = resolve(root, raw.RuntimeHooks[i].Script)
		}
	}
	for i := range raw.ModulePaths {
		raw.ModulePaths[i] = resolve(root, raw.ModulePaths[i])
	}
	if raw.WorkingRoot == nil {
		raw.WorkingRoot = &root
	}
}

func resolve(base, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// merge overlays child onto dst: scalars override, lists append, sets union
// (deduplicated at finalize), maps merge with child winning.
func merge(dst, child *rawDescriptor) {
	overrideStr := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	overrideBool := func(dst **bool, v *bool) {
		if v != nil {
			*dst = v
		}
	}

	overrideStr(&dst.Name, child.Name)
	overrideStr(&dst.Version, child.Version)
	overrideStr(&dst.Description, child.Description)
	overrideStr(&dst.EntryPoint, child.EntryPoint)
	overrideStr(&dst.WorkingRoot, child.WorkingRoot)
	overrideStr(&dst.OutputName, child.OutputName)
	overrideStr(&dst.Compression, child.Compression)
	overrideStr(&dst.Interpreter, child.Interpreter)
	overrideStr(&dst.ModulePathEnv, child.ModulePathEnv)
	overrideStr(&dst.Walker, child.Walker)
	overrideStr(&dst.Icon, child.Icon)
	overrideBool(&dst.ConsoleMode, child.ConsoleMode)
	overrideBool(&dst.Compress, child.Compress)
	overrideBool(&dst.Strip, child.Strip)

	dst.DataMappings = append(dst.DataMappings, child.DataMappings...)
	dst.RuntimeHooks = append(dst.RuntimeHooks, child.RuntimeHooks...)
	dst.ModulePaths = append(dst.ModulePaths, child.ModulePaths...)
	dst.ForcedModules = append(dst.ForcedModules, child.ForcedModules...)
	dst.ExcludeModules = append(dst.ExcludeModules, child.ExcludeModules...)

	if len(child.Env) > 0 {
		if dst.Env == nil {
			dst.Env = map[string]string{}
		}
		maps.Copy(dst.Env, child.Env)
	}
}

func finalize(raw *rawDescriptor) *Descriptor {
	str := func(v *string, def string) string {
		if v == nil {
			return def
		}
		return *v
	}
	boolean := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}

	d := &Descriptor{
		Name:          str(raw.Name, str(raw.OutputName, "")),
		Version:       str(raw.Version, DefaultVersion),
		Description:   str(raw.Description, ""),
		EntryPoint:    str(raw.EntryPoint, ""),
		WorkingRoot:   str(raw.WorkingRoot, ""),
		OutputName:    str(raw.OutputName, ""),
		ConsoleMode:   boolean(raw.ConsoleMode, true),
		Compress:      boolean(raw.Compress, true),
		Strip:         boolean(raw.Strip, false),
		Compression:   str(raw.Compression, DefaultCompression),
		Interpreter:   str(raw.Interpreter, ""),
		ModulePathEnv: str(raw.ModulePathEnv, ""),
		Walker:        str(raw.Walker, DefaultWalker),
		Icon:          str(raw.Icon, ""),
		Env:           raw.Env,
	}

	for _, m := range raw.DataMappings {
		d.DataMappings = append(d.DataMappings, DataMapping{Source: m.Source, Dest: m.Dest, Mode: m.Mode})
	}
	for _, h := range raw.RuntimeHooks {
		d.RuntimeHooks = append(d.RuntimeHooks, Hook{Script: h.Script, Env: h.Env})
	}
	d.ModulePaths = dedupe(raw.ModulePaths)
	d.ForcedModules = dedupe(raw.ForcedModules)
	d.ExcludeModules = dedupe(raw.ExcludeModules)
	return d
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/permissions"
	"github.com/spf13/afero"
)

var supportedCompression = map[string]bool{"gzip": true, "bzip2": true, "zstd": true}

// Validate checks the descriptor against the filesystem without modifying
// it: the entry point, every mapping source, every script hook and the icon
// must exist, and no destination may escape the bundle root or claim a
// reserved path. All problems are reported together.
func Validate(fsys afero.Fs, d *Descriptor) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	var errs []error

	if d.OutputName == "" || d.OutputName != filepath.Base(d.OutputName) || d.OutputName == "." || d.OutputName == ".." {
		errs = append(errs, fmt.Errorf("%w: output_name %q must be a plain file name", bundleerrors.ErrInvalidDescriptor, d.OutputName))
	}

	if info, err := fsys.Stat(d.EntryPoint); err != nil {
		errs = append(errs, &bundleerrors.SourceError{Role: "entry_point", Path: d.EntryPoint, Err: err})
	} else if info.IsDir() {
		errs = append(errs, &bundleerrors.SourceError{Role: "entry_point", Path: d.EntryPoint, Err: errors.New("is a directory")})
	}

	for _, m := range d.DataMappings {
		info, statErr := fsys.Stat(m.Source)
		if statErr != nil {
			errs = append(errs, &bundleerrors.SourceError{Role: "data_mapping", Path: m.Source, Err: statErr})
		}
		dest, destErr := CleanDest(m.Dest)
		if destErr != nil {
			errs = append(errs, destErr)
		}
		if statErr == nil && destErr == nil {
			target := dest
			if !info.IsDir() {
				target = path.Join(dest, filepath.Base(m.Source))
			}
			if err := checkReserved(target, d.OutputName); err != nil {
				errs = append(errs, err)
			}
		}
		if _, _, err := permissions.ParseOctal(m.Mode); err != nil {
			errs = append(errs, fmt.Errorf("%w: data mapping %s: %v", bundleerrors.ErrInvalidDescriptor, m.Source, err))
		}
	}

	for i, h := range d.RuntimeHooks {
		if h.Script != "" && h.Env != nil {
			errs = append(errs, fmt.Errorf("%w: runtime hook %d declares both script and env", bundleerrors.ErrInvalidDescriptor, i))
		}
		if h.Kind() == HookScript {
			if _, err := fsys.Stat(h.Script); err != nil {
				errs = append(errs, &bundleerrors.SourceError{Role: "runtime_hook", Path: h.Script, Err: err})
			}
		}
	}

	if d.Icon != "" {
		if _, err := fsys.Stat(d.Icon); err != nil {
			errs = append(errs, &bundleerrors.SourceError{Role: "icon", Path: d.Icon, Err: err})
		}
	}

	if d.Compress && !supportedCompression[d.Compression] {
		errs = append(errs, fmt.Errorf("%w: unsupported compression %q", bundleerrors.ErrInvalidDescriptor, d.Compression))
	}
	if w := d.Walker; w != WalkerImports && w != WalkerNone && !strings.HasPrefix(w, WalkerCommandPrefix) {
		errs = append(errs, fmt.Errorf("%w: unknown walker %q", bundleerrors.ErrInvalidDescriptor, w))
	}

	return errors.Join(errs...)
}

// ValidateSet checks descriptors that share one output directory: output
// names must be unique.
func ValidateSet(ds []*Descriptor) error {
	seen := map[string]string{}
	var errs []error
	for _, d := range ds {
		key := d.OutputName
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			key = strings.ToLower(key)
		}
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%w: %q declared by %s and %s",
				bundleerrors.ErrDuplicateOutput, d.OutputName, prev, origin(d)))
			continue
		}
		seen[key] = origin(d)
	}
	return errors.Join(errs...)
}

func origin(d *Descriptor) string {
	if len(d.Fragments) > 0 {
		return d.Fragments[len(d.Fragments)-1]
	}
	return d.OutputName
}

// CleanDest normalizes a bundle-relative destination to slash form. "" and
// "." both mean the bundle root and yield "". Absolute paths and paths that
// climb above the root are rejected.
func CleanDest(dest string) (string, error) {
	raw := dest
	dest = strings.ReplaceAll(dest, `\`, "/")
	if dest == "" {
		return "", nil
	}
	if strings.HasPrefix(dest, "/") || filepath.VolumeName(raw) != "" || (len(dest) >= 2 && dest[1] == ':') {
		return "", &bundleerrors.DestinationError{Dest: raw, Reason: "is absolute"}
	}
	cleaned := path.Clean(dest)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &bundleerrors.DestinationError{Dest: raw, Reason: "escapes the bundle root"}
	}
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// checkReserved rejects a bundle-relative target that would overwrite the
// launcher or land inside the bundle metadata directory.
func checkReserved(target, outputName string) error {
	if target == "" {
		return nil
	}
	first, _, _ := strings.Cut(target, "/")
	if strings.EqualFold(first, BundleDir) {
		return &bundleerrors.DestinationError{Dest: target, Reason: "is inside the reserved " + BundleDir + " directory"}
	}
	if target == outputName || strings.EqualFold(target, outputName+".exe") {
		return &bundleerrors.DestinationError{Dest: target, Reason: "collides with the launcher executable"}
	}
	return nil
}

// CheckTarget applies the reserved-path rule to a single bundle-relative
// file target. The copy stage calls it for every file found under a mapped
// directory.
func CheckTarget(target, outputName string) error {
	return checkReserved(path.Clean(strings.ReplaceAll(target, `\`, "/")), outputName)
}

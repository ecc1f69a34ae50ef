// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/permissions"
	"github.com/spf13/afero"
)

// copyData mirrors every data mapping into the staging directory. Later
// mappings overwrite files placed by earlier ones.
func (r *Run) copyData(ctx context.Context) error {
	placed := map[string]string{}
	for _, m := range r.d.DataMappings {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.copyMapping(m, placed)
		if err != nil {
			return err
		}
		r.logger.Debug("📋 Data mapping copied", "source", m.Source, "dest", m.Dest, "files", n)
	}

	r.dataFiles = r.dataFiles[:0]
	for target := range placed {
		r.dataFiles = append(r.dataFiles, target)
	}
	r.logger.Info("📋 Data files copied", "mappings", len(r.d.DataMappings), "files", len(placed))
	return nil
}

func (r *Run) copyMapping(m descriptor.DataMapping, placed map[string]string) (int, error) {
	dest, err := descriptor.CleanDest(m.Dest)
	if err != nil {
		return 0, err
	}
	mode, override, err := permissions.ParseOctal(m.Mode)
	if err != nil {
		return 0, err
	}

	info, err := r.b.fs.Stat(m.Source)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", m.Source, err)
	}
	if !info.IsDir() {
		target := path.Join(dest, filepath.Base(m.Source))
		return 1, r.place(m.Source, target, info, mode, override, placed)
	}

	count := 0
	err = afero.Walk(r.b.fs, m.Source, func(p string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			target, err := r.b.fs.Stat(p)
			if err != nil {
				return fmt.Errorf("broken symlink %s: %w", p, err)
			}
			if target.IsDir() {
				return fmt.Errorf("symlinked directory %s is not supported in data mappings", p)
			}
			fi = target
		}
		if !fi.Mode().IsRegular() {
			r.logger.Warn("⚠️ Skipping non-regular file", "path", p, "mode", fi.Mode().String())
			return nil
		}
		rel, err := filepath.Rel(m.Source, p)
		if err != nil {
			return err
		}
		count++
		return r.place(p, path.Join(dest, filepath.ToSlash(rel)), fi, mode, override, placed)
	})
	return count, err
}

// place copies one source file to the bundle-relative target.
func (r *Run) place(src, target string, info fs.FileInfo, mode fs.FileMode, override bool, placed map[string]string) error {
	if err := descriptor.CheckTarget(target, r.d.OutputName); err != nil {
		return err
	}
	if prev, ok := placed[target]; ok && prev != src {
		r.logger.Debug("Data file overridden by later mapping", "target", target, "previous", prev, "source", src)
	}
	placed[target] = src

	perm := info.Mode().Perm()
	if override {
		perm = mode
	}
	return r.copyFile(src, filepath.Join(r.staging, filepath.FromSlash(target)), perm)
}

func (r *Run) copyFile(src, dst string, perm os.FileMode) error {
	in, err := r.b.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := r.b.fs.MkdirAll(filepath.Dir(dst), permissions.DefaultDirPerms); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := r.b.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return r.b.fs.Chmod(dst, perm)
}

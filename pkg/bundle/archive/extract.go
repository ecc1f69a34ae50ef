// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/permissions"
)

// ErrUnsafeEntry is returned for archive entries that would land outside
// the extraction directory or are not regular files or directories.
var ErrUnsafeEntry = errors.New("🚫 unsafe archive entry")

// Extract unpacks r, encoded with ops, into dest and returns the number of
// files written.
func Extract(r io.Reader, ops []uint8, dest string) (int, error) {
	rc, err := operations.ReverseReader(ops, r)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if err := os.MkdirAll(dest, permissions.DefaultDirPerms); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	files := 0
	err = walk(rc, func(hdr *tar.Header, tr *tar.Reader) error {
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(target, permissions.DefaultDirPerms)
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), permissions.DefaultDirPerms); err != nil {
				return err
			}
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
			files++
			return nil
		default:
			return fmt.Errorf("%w: %s has unsupported type %q", ErrUnsafeEntry, hdr.Name, hdr.Typeflag)
		}
	})
	return files, err
}

// List returns the regular file names in r, in archive order.
func List(r io.Reader, ops []uint8) ([]string, error) {
	rc, err := operations.ReverseReader(ops, r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var names []string
	err = walk(rc, func(hdr *tar.Header, _ *tar.Reader) error {
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
		return nil
	})
	return names, err
}

func walk(r io.Reader, fn func(*tar.Header, *tar.Reader) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func safeJoin(dest, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the extraction directory", ErrUnsafeEntry, name)
	}
	return filepath.Join(dest, rel), nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = permissions.DefaultFilePerms
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package pkg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/archive"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/launcher"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// Check is the outcome of one verification step.
type Check struct {
	Name string
	Err  error
}

// Report collects every check run against a bundle.
type Report struct {
	Bundle *launcher.Bundle
	Checks []Check
}

// Err joins the failed checks.
func (r *Report) Err() error {
	var errs []error
	for _, c := range r.Checks {
		if c.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, c.Err))
		}
	}
	return errors.Join(errs...)
}

// OpenBundleDir reads the manifest of the bundle rooted at dir.
func OpenBundleDir(dir string) (*launcher.Bundle, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Read(filepath.Join(root, descriptor.BundleDir, descriptor.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%s is not a bundle: %w", dir, err)
	}
	return &launcher.Bundle{Root: root, Exe: filepath.Join(root, m.Executable), Manifest: m}, nil
}

// VerifyBundle runs every integrity check against the bundle at dir and
// keeps going after a failure, so the report is complete. The returned
// error covers only a bundle that could not be opened; use Report.Err for
// check failures.
func VerifyBundle(dir string, logger hclog.Logger) (*Report, error) {
	logger = logging.OrNull(logger)
	b, err := OpenBundleDir(dir)
	if err != nil {
		return nil, err
	}
	r := &Report{Bundle: b}
	add := func(name string, err error) {
		r.Checks = append(r.Checks, Check{Name: name, Err: err})
		if err != nil {
			logger.Error("✗ "+name, "error", err)
		} else {
			logger.Debug("✓ " + name)
		}
	}
	m := b.Manifest

	if _, err := os.Stat(b.Exe); err != nil {
		add("launcher present", err)
	} else {
		add("launcher present", nil)
	}
	add("manifest seal", manifest.Verify(m, nil))
	add("archive checksum", manifest.VerifyFile(b.ArchivePath(), m.Archive.Checksum))

	names, err := listArchive(b)
	if err == nil && m.Archive.FileCount > 0 && len(names) != m.Archive.FileCount {
		err = fmt.Errorf("archive holds %d files, manifest lists %d", len(names), m.Archive.FileCount)
	}
	add("archive contents", err)

	for _, rel := range m.Data {
		if _, err := os.Stat(filepath.Join(b.Root, filepath.FromSlash(rel))); err != nil {
			add("data file "+rel, err)
		}
	}

	if err := r.Err(); err != nil {
		logger.Error("✗ Bundle verification failed", "dir", b.Root)
	} else {
		logger.Info("✓ Bundle verification passed", "dir", b.Root)
	}
	return r, nil
}

// ListArchive returns the file names stored in the bundle's module archive.
func ListArchive(b *launcher.Bundle) ([]string, error) {
	return listArchive(b)
}

func listArchive(b *launcher.Bundle) ([]string, error) {
	ops, err := operations.ParseChain(b.Manifest.Archive.Operations)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(b.ArchivePath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return archive.List(f, ops)
}

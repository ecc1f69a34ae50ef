// SPDX-License-Identifier: Apache-2.0

// Package archive writes and extracts the module archive carried by a bundle.
// Archives are tar streams passed through an operation chain; output depends
// only on the entry contents, names, modes and the supplied modification
// time.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
	_ "github.com/provide-io/flavor/go/bundle/pkg/bundle/operations/compress"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/permissions"
)

// Entry is one file to archive.
type Entry struct {
	// Name is the slash-separated path inside the archive.
	Name string
	// Source is the file on disk.
	Source string
	// Mode overrides the source permissions when non-zero.
	Mode fs.FileMode
}

// Options control archive output.
type Options struct {
	Operations []uint8
	// ModTime is stamped on every header. The zero value means the Unix epoch.
	ModTime time.Time
	// Strip drops debug and bytecode artifacts.
	Strip  bool
	Logger hclog.Logger
}

// Stats describes a written archive.
type Stats struct {
	Files    int
	Skipped  int
	RawBytes int64
	Names    []string
}

// Write archives entries to w. Entries are sorted by name; duplicate names
// are an error.
func Write(w io.Writer, entries []Entry, opts Options) (*Stats, error) {
	logger := logging.OrNull(opts.Logger)
	ops := opts.Operations
	if len(ops) == 0 {
		ops = []uint8{operations.OpTar}
	}
	if ops[0] != operations.OpTar {
		return nil, fmt.Errorf("archive chain must start with TAR, got %s", operations.ChainString(ops))
	}
	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Unix(0, 0)
	}

	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		name, err := cleanName(e.Name)
		if err != nil {
			return nil, err
		}
		e.Name = name
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate archive entry %q (%s, %s)", sorted[i].Name, sorted[i-1].Source, sorted[i].Source)
		}
	}

	stats := &Stats{}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, sorted, modTime, opts.Strip, stats, logger))
	}()

	err := operations.ApplyChainStream(ops, pr, w)
	pr.CloseWithError(err)
	if err != nil {
		return nil, fmt.Errorf("writing %s archive: %w", operations.ChainString(ops), err)
	}
	logger.Debug("📦 Archive written", "files", stats.Files, "skipped", stats.Skipped,
		"raw_bytes", stats.RawBytes, "chain", operations.ChainString(ops))
	return stats, nil
}

func writeTar(w io.Writer, entries []Entry, modTime time.Time, strip bool, stats *Stats, logger hclog.Logger) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		if strip && IsDebugArtifact(e.Name) {
			logger.Trace("Stripping debug artifact", "name", e.Name)
			stats.Skipped++
			continue
		}
		size, err := writeEntry(tw, e, modTime)
		if err != nil {
			return err
		}
		stats.Files++
		stats.RawBytes += size
		stats.Names = append(stats.Names, e.Name)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	return nil
}

func writeEntry(tw *tar.Writer, e Entry, modTime time.Time) (int64, error) {
	f, err := os.Open(e.Source)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", e.Source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", e.Source, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", e.Source)
	}

	mode := e.Mode
	if mode == 0 {
		mode = normalizeMode(info.Mode())
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     e.Name,
		Mode:     int64(mode.Perm()),
		Size:     info.Size(),
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("writing tar header for %s: %w", e.Name, err)
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return 0, fmt.Errorf("writing tar data for %s: %w", e.Name, err)
	}
	return n, nil
}

// normalizeMode collapses source permissions to 0644 or 0755 so archives do
// not depend on the builder's umask.
func normalizeMode(m fs.FileMode) fs.FileMode {
	if permissions.IsExecutable(m) {
		return permissions.DefaultExecutablePerms
	}
	return permissions.DefaultFilePerms
}

func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid archive entry name %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid archive entry name %q", name)
	}
	return cleaned, nil
}

var debugSuffixes = []string{".pyc", ".pyo", ".pdb", ".map", ".debug"}

// IsDebugArtifact reports whether an archive name is removed when strip is
// enabled: anything under __pycache__ and bytecode or debug-symbol sidecars.
func IsDebugArtifact(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == "__pycache__" {
			return true
		}
	}
	for _, s := range debugSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

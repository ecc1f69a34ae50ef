// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the launch manifest stored at
// _bundle/manifest.json. The builder writes and seals it; the launcher reads
// and verifies it before touching the module archive.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
)

// Format identifies the manifest layout.
const Format = "flavor-bundle/1"

// Manifest describes one committed bundle.
type Manifest struct {
	Format  string      `json:"format"`
	Package PackageInfo `json:"package"`

	// Executable is the launcher file name inside the bundle root.
	Executable    string            `json:"executable"`
	Entry         string            `json:"entry"`
	Interpreter   []string          `json:"interpreter,omitempty"`
	ModulePathEnv string            `json:"module_path_env,omitempty"`
	ConsoleMode   bool              `json:"console_mode"`
	Env           map[string]string `json:"env,omitempty"`
	Hooks         []Hook            `json:"hooks,omitempty"`

	Archive ArchiveInfo `json:"archive"`
	Modules []string    `json:"modules"`
	Data    []string    `json:"data,omitempty"`

	Build BuildInfo `json:"build"`
	Seal  *Seal     `json:"seal,omitempty"`
}

type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Hook is a runtime hook as recorded in the bundle. Script is an archive
// path under the extracted module directory.
type Hook struct {
	Kind   string            `json:"kind"`
	Script string            `json:"script,omitempty"`
	Env    map[string]string `json:"env,omitempty"`
}

// ArchiveInfo locates and fingerprints the module archive.
type ArchiveInfo struct {
	// File is relative to the _bundle directory.
	File       string `json:"file"`
	Operations string `json:"operations"`
	Checksum   string `json:"checksum"`
	Size       int64  `json:"size"`
	RawSize    int64  `json:"raw_size"`
	FileCount  int    `json:"file_count"`
}

type BuildInfo struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Platform  string `json:"platform"`
}

// Read loads and parses the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a manifest and checks its format tag.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Format != Format {
		return nil, fmt.Errorf("%w: manifest format %q, expected %q", bundleerrors.ErrUnsupportedFormat, m.Format, Format)
	}
	return &m, nil
}

// Write stores m at path with 0644 permissions, creating parent directories.
func Write(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

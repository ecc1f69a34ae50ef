// SPDX-License-Identifier: Apache-2.0

package workenv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ValidationMarker is the extraction completion marker.
type ValidationMarker struct {
	Timestamp   time.Time `json:"timestamp"`
	PackageName string    `json:"package_name"`
	Version     string    `json:"version"`
	Checksum    string    `json:"checksum"`
	FileCount   int       `json:"file_count"`
}

// IsValid reports whether the cache entry was fully extracted from the
// archive with the given checksum.
func IsValid(p *Paths, checksum string) bool {
	marker, err := ReadMarker(p)
	if err != nil {
		return false
	}
	return marker.Checksum == checksum
}

// ReadMarker loads the completion marker of a cache entry.
func ReadMarker(p *Paths) (*ValidationMarker, error) {
	data, err := os.ReadFile(p.CompleteFile())
	if err != nil {
		return nil, err
	}
	var marker ValidationMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, err
	}
	return &marker, nil
}

// MarkComplete writes the completion marker into dir, which is either the
// module directory or a temporary extraction directory about to replace it.
func MarkComplete(dir string, marker ValidationMarker) error {
	if marker.Timestamp.IsZero() {
		marker.Timestamp = time.Now().UTC()
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, completeFile), data, 0o644)
}

// MarkIncomplete removes the completion marker so the next launch
// re-extracts.
func MarkIncomplete(p *Paths) error {
	err := os.Remove(p.CompleteFile())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

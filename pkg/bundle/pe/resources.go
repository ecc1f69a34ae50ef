// SPDX-License-Identifier: Apache-2.0

package pe

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/fsutil"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/tc-hib/winres"
	"github.com/tc-hib/winres/version"
)

// resourceLang is en-US.
const resourceLang = 0x0409

// Options describe how a launcher executable is prepared.
type Options struct {
	Console     bool
	IconPath    string
	Name        string
	Version     string
	Description string
	// OriginalFilename is recorded in the version resource.
	OriginalFilename string
}

// Prepare applies opts to the PE file at exePath: resources first, then the
// subsystem patch. The file is replaced atomically.
func Prepare(exePath string, opts Options, logger hclog.Logger) error {
	logger = logging.OrNull(logger)

	data, err := os.ReadFile(exePath)
	if err != nil {
		return fmt.Errorf("failed to read launcher: %w", err)
	}
	info, err := os.Stat(exePath)
	if err != nil {
		return err
	}

	data, err = embedResources(data, opts, logger)
	if err != nil {
		return err
	}

	changed, err := SetSubsystem(data, opts.Console)
	if err != nil {
		return fmt.Errorf("failed to set subsystem: %w", err)
	}
	logger.Debug("🪟 PE subsystem", "console", opts.Console, "patched", changed)

	if err := fsutil.WriteFileAtomic(exePath, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to replace launcher: %w", err)
	}
	return nil
}

func embedResources(data []byte, opts Options, logger hclog.Logger) ([]byte, error) {
	rs, err := winres.LoadFromEXE(bytes.NewReader(data))
	if err != nil {
		logger.Debug("Creating new resource set (no existing resources)")
		rs = &winres.ResourceSet{}
	}

	if opts.IconPath != "" {
		f, err := os.Open(opts.IconPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open icon: %w", err)
		}
		icon, err := winres.LoadICO(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load icon %s: %w", opts.IconPath, err)
		}
		if err := rs.SetIcon(winres.Name("APPICON"), icon); err != nil {
			return nil, fmt.Errorf("failed to set icon resource: %w", err)
		}
		logger.Debug("🎨 Icon resource set", "icon", opts.IconPath)
	}

	vi := version.Info{}
	if opts.Version != "" {
		vi.SetFileVersion(numericVersion(opts.Version))
		vi.SetProductVersion(numericVersion(opts.Version))
	}
	fields := map[string]string{
		version.ProductName:      opts.Name,
		version.ProductVersion:   opts.Version,
		version.FileVersion:      opts.Version,
		version.FileDescription:  opts.Description,
		version.OriginalFilename: opts.OriginalFilename,
		version.InternalName:     opts.Name,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := vi.Set(resourceLang, key, value); err != nil {
			return nil, fmt.Errorf("failed to set version field %s: %w", key, err)
		}
	}
	rs.SetVersionInfo(vi)

	var out bytes.Buffer
	if err := rs.WriteToEXE(&out, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to write resources to EXE: %w", err)
	}
	return out.Bytes(), nil
}

// numericVersion keeps the leading dotted numeric part of a version string,
// so "1.2.0-rc1" becomes "1.2.0".
func numericVersion(v string) string {
	end := len(v)
	for i, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			end = i
			break
		}
	}
	return strings.Trim(v[:end], ".")
}

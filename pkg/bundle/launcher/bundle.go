// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// ValidationLevel controls how strictly a bundle is checked before launch.
type ValidationLevel int

const (
	// ValidationStrict fails on any seal or checksum problem.
	ValidationStrict ValidationLevel = iota
	// ValidationStandard is the default; it behaves like strict.
	ValidationStandard
	// ValidationRelaxed warns on seal problems and fails on checksum ones.
	ValidationRelaxed
	// ValidationMinimal warns on every problem.
	ValidationMinimal
	// ValidationNone skips verification entirely.
	ValidationNone
)

// ValidationEnv selects the validation level.
const ValidationEnv = "FLAVOR_VALIDATION"

// ValidationLevelFromEnv reads FLAVOR_VALIDATION, defaulting to standard.
func ValidationLevelFromEnv() ValidationLevel {
	switch strings.ToLower(os.Getenv(ValidationEnv)) {
	case "strict":
		return ValidationStrict
	case "relaxed":
		return ValidationRelaxed
	case "minimal":
		return ValidationMinimal
	case "none":
		return ValidationNone
	default:
		return ValidationStandard
	}
}

var levelNames = [...]string{"strict", "standard", "relaxed", "minimal", "none"}

func (v ValidationLevel) String() string {
	if v < 0 || int(v) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[v]
}

// Bundle is an opened bundle directory.
type Bundle struct {
	// Root is the directory holding the launcher.
	Root     string
	Exe      string
	Manifest *manifest.Manifest
}

// Open reads the manifest of the bundle whose launcher is exePath.
// Symlinks to the launcher are followed.
func Open(exePath string) (*Bundle, error) {
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}
	abs, err := filepath.Abs(exePath)
	if err != nil {
		return nil, withCode(ExitIOError, err)
	}
	root := filepath.Dir(abs)
	m, err := manifest.Read(filepath.Join(root, descriptor.BundleDir, descriptor.ManifestFile))
	if err != nil {
		return nil, withCode(ExitBundleError, err)
	}
	return &Bundle{Root: root, Exe: abs, Manifest: m}, nil
}

// BundleDir is the bundle metadata directory.
func (b *Bundle) BundleDir() string {
	return filepath.Join(b.Root, descriptor.BundleDir)
}

// ArchivePath is the module archive on disk.
func (b *Bundle) ArchivePath() string {
	return filepath.Join(b.BundleDir(), b.Manifest.Archive.File)
}

// Verify checks the manifest seal and the archive checksum at the given
// level.
func (b *Bundle) Verify(level ValidationLevel, logger hclog.Logger) error {
	logger = logging.OrNull(logger)
	if level == ValidationNone {
		logger.Warn("⚠️ Bundle validation disabled", "env", ValidationEnv)
		return nil
	}

	if err := manifest.Verify(b.Manifest, nil); err != nil {
		if level < ValidationRelaxed {
			return withCode(ExitBundleError, err)
		}
		logger.Warn("⚠️ Seal verification failed, continuing", "level", level.String(), "error", err)
	} else {
		logger.Debug("🔏 Seal verified")
	}

	if err := manifest.VerifyFile(b.ArchivePath(), b.Manifest.Archive.Checksum); err != nil {
		if level < ValidationMinimal {
			return withCode(ExitBundleError, err)
		}
		logger.Warn("⚠️ Archive checksum mismatch, continuing", "level", level.String(), "error", err)
	} else {
		logger.Debug("✅ Archive checksum verified", "checksum", b.Manifest.Archive.Checksum)
	}
	return nil
}

// Describe renders a short human summary of the bundle.
func (b *Bundle) Describe() string {
	m := b.Manifest
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s v%s [%s]\n", m.Package.Name, m.Package.Version, m.Format)
	fmt.Fprintf(&sb, "Built with: %s %s | Platform: %s | Archive: %s %.1fMB\n",
		m.Build.Tool, m.Build.Version, m.Build.Platform, m.Archive.Operations, float64(m.Archive.Size)/(1024*1024))
	fmt.Fprintf(&sb, "Modules: %d | Data files: %d | Hooks: %d | Console: %s\n",
		len(m.Modules), len(m.Data), len(m.Hooks), strconv.FormatBool(m.ConsoleMode))
	entry := m.Entry
	if len(m.Interpreter) > 0 {
		entry = strings.Join(m.Interpreter, " ") + " " + entry
	}
	fmt.Fprintf(&sb, "Entry: %s\n", entry)
	return sb.String()
}

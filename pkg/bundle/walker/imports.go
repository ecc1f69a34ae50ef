// SPDX-License-Identifier: Apache-2.0

package walker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

var (
	importRe = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromRe   = regexp.MustCompile(`^\s*from\s+(\.*)([A-Za-z_][\w.]*)?\s+import\s+(.+)$`)
)

// ImportScanner follows import statements from source files. Ids that do
// not resolve under any search root are external (standard library or
// installed packages) and are skipped.
type ImportScanner struct {
	Roots  []string
	logger hclog.Logger
}

func NewImportScanner(roots []string, logger hclog.Logger) *ImportScanner {
	return &ImportScanner{Roots: roots, logger: logging.OrNull(logger)}
}

// Discover returns the entry module and every local module reachable from
// it or from seeds.
func (s *ImportScanner) Discover(ctx context.Context, entry string, seeds ...string) ([]Module, error) {
	start := []Module{EntryModule(entry, s.Roots)}
	for _, seed := range seeds {
		start = append(start, Module{ID: "", Path: seed, Root: rootFor(seed, s.Roots)})
	}
	found, err := s.walk(ctx, start)
	if err != nil {
		return nil, err
	}
	var out []Module
	for _, m := range found {
		if m.ID == "" && !m.Entry {
			continue
		}
		out = append(out, m)
	}
	return Merge(out), nil
}

// Expand returns start plus everything reachable from it.
func (s *ImportScanner) Expand(ctx context.Context, start []Module) ([]Module, error) {
	found, err := s.walk(ctx, start)
	if err != nil {
		return nil, err
	}
	return Merge(found), nil
}

// walk is a breadth-first traversal keyed by file path.
func (s *ImportScanner) walk(ctx context.Context, start []Module) ([]Module, error) {
	queue := append([]Module(nil), start...)
	seen := map[string]bool{}
	var out []Module

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := queue[0]
		queue = queue[1:]
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		out = append(out, m)

		ids, err := ScanFile(m.Path, packageOf(m))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			dep, ok := Resolve(id, s.Roots)
			if !ok {
				s.logger.Trace("Skipping external import", "module", id, "from", m.Path)
				continue
			}
			if !seen[dep.Path] {
				queue = append(queue, dep)
			}
			for _, p := range parents(dep) {
				if !seen[p.Path] {
					queue = append(queue, p)
				}
			}
		}
	}
	s.logger.Debug("🔍 Import scan complete", "start", len(start), "modules", len(out))
	return out, nil
}

// packageOf is the package relative imports in m resolve against.
func packageOf(m Module) string {
	if strings.HasSuffix(m.Path, "__init__"+ModuleSuffix) {
		return m.ID
	}
	if i := strings.LastIndex(m.ID, "."); i >= 0 {
		return m.ID[:i]
	}
	return ""
}

// ScanFile returns the module ids imported by the file at path. pkg is the
// importing module's package, used for relative imports.
func ScanFile(path, pkg string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		ids = append(ids, ScanLine(sc.Text(), pkg)...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return ids, nil
}

// ScanLine extracts module ids from a single source line. For
// "from a import b" both "a" and the candidate submodule "a.b" are returned;
// the caller keeps whichever resolves.
func ScanLine(line, pkg string) []string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}

	if m := fromRe.FindStringSubmatch(line); m != nil {
		base := m[2]
		if dots := len(m[1]); dots > 0 {
			var ok bool
			base, ok = relativeBase(pkg, dots, base)
			if !ok {
				return nil
			}
		}
		var ids []string
		if base != "" {
			ids = append(ids, base)
		}
		for _, name := range names(m[3]) {
			if name == "*" {
				continue
			}
			if base == "" {
				ids = append(ids, name)
			} else {
				ids = append(ids, base+"."+name)
			}
		}
		return ids
	}

	if m := importRe.FindStringSubmatch(line); m != nil {
		return names(m[1])
	}
	return nil
}

// relativeBase resolves a "from ..x import" target against pkg.
func relativeBase(pkg string, dots int, rest string) (string, bool) {
	parts := []string{}
	if pkg != "" {
		parts = strings.Split(pkg, ".")
	}
	up := dots - 1
	if up > len(parts) {
		return "", false
	}
	parts = parts[:len(parts)-up]
	if rest != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, "."), true
}

// names splits "a.b as c, d" or "(x, y)" into identifiers.
func names(list string) []string {
	list = strings.NewReplacer("(", " ", ")", " ", "\\", " ", ";", ",").Replace(list)
	var out []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if !validID(name) && name != "*" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func validID(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			case i > 0 && r >= '0' && r <= '9':
			default:
				return false
			}
		}
	}
	return true
}

// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"bufio"
	"bytes"
	"os"
	"runtime"
	"sort"
	"strings"
)

// Environment variables the launcher always sets for hooks and the entry
// point.
const (
	BundleRootEnv    = "FLAVOR_BUNDLE_ROOT"
	BundleModulesEnv = "FLAVOR_BUNDLE_MODULES"
)

// Env is a mutable process environment.
type Env struct {
	vars map[string]string
	// names keeps the original spelling of case-insensitive keys.
	names map[string]string
}

// NewEnv parses a KEY=VALUE list such as os.Environ().
func NewEnv(list []string) *Env {
	e := &Env{vars: map[string]string{}, names: map[string]string{}}
	for _, kv := range list {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			e.Set(k, v)
		}
	}
	return e
}

func normKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

// Set assigns key.
func (e *Env) Set(key, value string) {
	n := normKey(key)
	e.vars[n] = value
	if _, ok := e.names[n]; !ok {
		e.names[n] = key
	}
}

// Get returns the value of key.
func (e *Env) Get(key string) (string, bool) {
	v, ok := e.vars[normKey(key)]
	return v, ok
}

// PrependPath puts dir in front of the path list stored in key.
func (e *Env) PrependPath(key, dir string) {
	if cur, ok := e.Get(key); ok && cur != "" {
		e.Set(key, dir+string(os.PathListSeparator)+cur)
		return
	}
	e.Set(key, dir)
}

// List renders the environment as sorted KEY=VALUE pairs.
func (e *Env) List() []string {
	out := make([]string, 0, len(e.vars))
	for n, v := range e.vars {
		out = append(out, e.names[n]+"="+v)
	}
	sort.Strings(out)
	return out
}

// Placeholders are substituted in static env values, env hook values and
// script hook output.
type Placeholders struct {
	Bundle  string
	Modules string
	Exe     string
}

// Expand replaces {bundle}, {modules} and {exe} in s.
func (p Placeholders) Expand(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return strings.NewReplacer(
		"{bundle}", p.Bundle,
		"{modules}", p.Modules,
		"{exe}", p.Exe,
	).Replace(s)
}

// ParseAssignments reads KEY=VALUE lines, optionally prefixed with
// "export ". Surrounding single or double quotes are removed from values.
// Other lines are ignored.
func ParseAssignments(out []byte) [][2]string {
	var pairs [][2]string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok || !validEnvName(k) {
			continue
		}
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs
}

func validEnvName(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

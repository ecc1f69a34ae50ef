// SPDX-License-Identifier: Apache-2.0

package walker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/provide-io/flavor/go/bundle/pkg/utils/shellparse"
)

// CommandWalker runs an external dependency tool as "<argv...> <entry>
// [seeds...]" and reads one module per stdout line, "id<TAB>path" or
// "id path". Relative paths resolve against the first search root.
type CommandWalker struct {
	Argv   []string
	Roots  []string
	logger hclog.Logger
}

func NewCommandWalker(command string, roots []string, logger hclog.Logger) (*CommandWalker, error) {
	argv, err := shellparse.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid walker command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("walker command is empty")
	}
	return &CommandWalker{Argv: argv, Roots: roots, logger: logging.OrNull(logger)}, nil
}

func (c *CommandWalker) Discover(ctx context.Context, entry string, seeds ...string) ([]Module, error) {
	args := append(append(append([]string(nil), c.Argv[1:]...), entry), seeds...)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	if len(c.Roots) > 0 {
		cmd.Dir = c.Roots[0]
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("🔍 Running walker command", "argv", shellparse.Join(cmd.Args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("walker command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	mods, err := c.parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return Merge([]Module{EntryModule(entry, c.Roots)}, mods), nil
}

func (c *CommandWalker) parse(out []byte) ([]Module, error) {
	var mods []Module
	sc := bufio.NewScanner(bytes.NewReader(out))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, path, ok := strings.Cut(text, "\t")
		if !ok {
			id, path, ok = strings.Cut(text, " ")
		}
		id, path = strings.TrimSpace(id), strings.TrimSpace(path)
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("walker output line %d: expected \"id<TAB>path\", got %q", line, text)
		}
		if !filepath.IsAbs(path) && len(c.Roots) > 0 {
			path = filepath.Join(c.Roots[0], path)
		}
		path = filepath.Clean(path)
		mods = append(mods, Module{ID: id, Path: path, Root: rootFor(path, c.Roots)})
	}
	return mods, sc.Err()
}

// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
)

// RunHooks runs every runtime hook in declared order against env. Env hooks
// set variables directly; script hooks run to completion and every
// KEY=VALUE line they print is applied before the next hook.
func (l *Launcher) RunHooks(ctx context.Context, env *Env, ph Placeholders) error {
	for i, h := range l.bundle.Manifest.Hooks {
		switch h.Kind {
		case "env":
			for k, v := range h.Env {
				env.Set(k, ph.Expand(v))
			}
			l.logger.Debug("🪝 Env hook applied", "index", i, "vars", len(h.Env))
		case "script":
			if err := l.runScriptHook(ctx, i, h.Script, env, ph); err != nil {
				return withCode(ExitHookError, err)
			}
		default:
			return withCode(ExitBundleError, fmt.Errorf("%w: hook %d has unknown kind %q", bundleerrors.ErrHookFailed, i, h.Kind))
		}
	}
	return nil
}

func (l *Launcher) runScriptHook(ctx context.Context, i int, script string, env *Env, ph Placeholders) error {
	cmd := l.command(ph.Modules, script, nil, env)
	var stdout bytes.Buffer
	cmd.Stdin = nil
	cmd.Stdout = &stdout

	l.logger.Debug("🪝 Running script hook", "index", i, "script", script)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: hook %d (%s): %v", bundleerrors.ErrHookFailed, i, filepath.Base(script), err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: hook %d (%s): %v", bundleerrors.ErrHookFailed, i, filepath.Base(script), err)
		}
	}

	pairs := ParseAssignments(stdout.Bytes())
	for _, kv := range pairs {
		env.Set(kv[0], ph.Expand(kv[1]))
	}
	if len(pairs) == 0 && strings.TrimSpace(stdout.String()) != "" {
		l.logger.Debug("Hook output had no assignments", "index", i)
	}
	l.logger.Debug("🪝 Script hook done", "index", i, "vars", len(pairs))
	return nil
}

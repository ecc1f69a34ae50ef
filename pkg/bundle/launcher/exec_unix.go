// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
)

var forwarded = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// execReplace replaces the current process with cmd. It only returns on
// failure.
func execReplace(cmd *exec.Cmd, logger hclog.Logger) error {
	binary, err := exec.LookPath(cmd.Path)
	if err != nil {
		return fmt.Errorf("failed to find command %s: %w", cmd.Path, err)
	}
	if cmd.Dir != "" {
		if err := os.Chdir(cmd.Dir); err != nil {
			return fmt.Errorf("failed to change directory: %w", err)
		}
	}
	logger.Debug("🔄 Replacing process via exec", "binary", binary, "args", cmd.Args[1:])
	err = syscall.Exec(binary, cmd.Args, cmd.Env)
	return fmt.Errorf("exec failed: %w", err)
}

// forwardSignals relays termination signals to the child until stop is
// called.
func forwardSignals(p *os.Process, logger hclog.Logger) (stop func()) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, forwarded...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case s := <-sigs:
				logger.Debug("📡 Forwarding signal", "signal", s.String())
				if err := p.Signal(s); err != nil {
					logger.Trace("Signal not delivered", "error", err)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

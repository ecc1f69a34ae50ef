// SPDX-License-Identifier: Apache-2.0

//go:build windows

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"

	"github.com/hashicorp/go-hclog"
)

func execReplace(_ *exec.Cmd, _ hclog.Logger) error {
	return errors.New("exec mode is not supported on windows")
}

// forwardSignals keeps the launcher alive on Ctrl+C; the console already
// delivers the event to the child.
func forwardSignals(_ *os.Process, logger hclog.Logger) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				logger.Debug("📡 Interrupt received, waiting for child")
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

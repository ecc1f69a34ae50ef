// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"errors"
	"fmt"
)

// Exit codes for launcher failures. A successful launch exits with the
// entry point's own status.
const (
	ExitPanic           = 101
	ExitBundleError     = 102
	ExitExtractionError = 103
	ExitExecutionError  = 104
	ExitInvalidArgs     = 105
	ExitIOError         = 106
	ExitHookError       = 107
)

// ExitError carries the process exit code for a launcher failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("%v (exit %d)", e.Err, e.Code) }

func (e *ExitError) Unwrap() error { return e.Err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps err to a launcher exit code. Errors without a code are
// execution errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitExecutionError
}

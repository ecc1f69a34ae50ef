// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildErrorWrapsCause(t *testing.T) {
	inner := &SourceError{Role: "entry_point", Path: "main.py", Err: os.ErrNotExist}
	err := fmt.Errorf("evaluating: %w", &BuildError{Stage: "validate", Cause: inner})

	assert.ErrorIs(t, err, ErrBuildFailure)
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "validate", StageOf(err))
	assert.Contains(t, err.Error(), "build failed at stage validate")
}

func TestJoinedValidationErrors(t *testing.T) {
	err := errors.Join(
		&DestinationError{Dest: "../x", Reason: "escapes the bundle root"},
		&ModuleError{ID: "services.diff"},
	)
	assert.ErrorIs(t, err, ErrUnsafeDestination)
	assert.ErrorIs(t, err, ErrForcedModuleUnresolvable)
	assert.NotErrorIs(t, err, ErrMissingSource)
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, "", StageOf(context.Canceled))
	assert.Equal(t, "copy", StageOf(&BuildError{Stage: "copy", Cause: context.Canceled}))
}

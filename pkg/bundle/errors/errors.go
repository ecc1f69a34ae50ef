// SPDX-License-Identifier: Apache-2.0

// Package errors holds the error kinds reported by descriptor validation,
// the build pipeline and the launcher.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Descriptor errors 📄
	ErrMissingSource            = errors.New("❌ missing source")
	ErrUnsafeDestination        = errors.New("❌ unsafe destination")
	ErrForcedModuleUnresolvable = errors.New("❌ forced module unresolvable")
	ErrDuplicateOutput          = errors.New("❌ duplicate output name")
	ErrCyclicDescriptor         = errors.New("❌ cyclic descriptor composition")
	ErrUnsupportedFormat        = errors.New("❌ unsupported descriptor format")
	ErrInvalidDescriptor        = errors.New("❌ invalid descriptor")

	// Build errors 🏗️
	ErrBuildFailure = errors.New("❌ build failure")
	ErrOutputLocked = errors.New("❌ output is locked by another build")

	// Bundle errors 📦
	ErrChecksumMismatch = errors.New("❌ checksum mismatch")
	ErrSignatureInvalid = errors.New("❌ invalid signature")
	ErrHookFailed       = errors.New("❌ runtime hook failed")
)

// SourceError reports a declared input path that does not exist.
type SourceError struct {
	Role string // "entry_point", "data_mapping", "runtime_hook", "icon"
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %q: %v", ErrMissingSource, e.Role, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s %q", ErrMissingSource, e.Role, e.Path)
}

func (e *SourceError) Is(target error) bool { return target == ErrMissingSource }

func (e *SourceError) Unwrap() error { return e.Err }

// DestinationError reports a data mapping destination that would land
// outside the bundle root or on a reserved path.
type DestinationError struct {
	Dest   string
	Reason string
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("%s: %q %s", ErrUnsafeDestination, e.Dest, e.Reason)
}

func (e *DestinationError) Is(target error) bool { return target == ErrUnsafeDestination }

// ModuleError reports a forced module the walker could not locate.
type ModuleError struct {
	ID string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrForcedModuleUnresolvable, e.ID)
}

func (e *ModuleError) Is(target error) bool { return target == ErrForcedModuleUnresolvable }

// BuildError tags a failure with the pipeline stage it came from.
type BuildError struct {
	Stage string
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed at stage %s: %v", e.Stage, e.Cause)
}

func (e *BuildError) Is(target error) bool { return target == ErrBuildFailure }

func (e *BuildError) Unwrap() error { return e.Cause }

// StageOf returns the stage recorded in err, or "" when err is not a
// BuildError.
func StageOf(err error) string {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Stage
	}
	return ""
}

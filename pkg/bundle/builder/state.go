// SPDX-License-Identifier: Apache-2.0

package builder

// State is the lifecycle position of one build.
type State int

const (
	StateUnvalidated State = iota
	StateValidated
	StateBuilt
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValidated:
		return "validated"
	case StateBuilt:
		return "built"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage names a pipeline step. Failures are reported with the stage they
// happened in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageDiscover Stage = "discover"
	StageResolve  Stage = "resolve"
	StageArchive  Stage = "archive"
	StageCopy     Stage = "copy"
	StageLauncher Stage = "launcher"
	StageCommit   Stage = "commit"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{
	StageValidate,
	StageDiscover,
	StageResolve,
	StageArchive,
	StageCopy,
	StageLauncher,
	StageCommit,
}

// next returns the state reached after stage completes successfully.
func next(current State, stage Stage) State {
	switch stage {
	case StageValidate:
		return StateValidated
	case StageLauncher:
		return StateBuilt
	case StageCommit:
		return StateCommitted
	default:
		return current
	}
}

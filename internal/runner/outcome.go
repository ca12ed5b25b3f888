package runner

import (
	"time"

	"github.com/tyemirov/matrixci/internal/matrix"
)

// StepStatus classifies one executed stage.
type StepStatus string

// Step statuses.
const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailure StepStatus = "failure"
	StepStatusSkipped StepStatus = "skipped"
)

// JobStatus classifies one finished job.
type JobStatus string

// Job statuses. Cancelled marks jobs cut short by build-level cancellation
// before completing normally; Skipped never appears at job level.
const (
	JobStatusSuccess   JobStatus = "success"
	JobStatusFailure   JobStatus = "failure"
	JobStatusCancelled JobStatus = "cancelled"
)

// StageKind names the pipeline section a stage belongs to.
type StageKind string

// Stage kinds in execution order.
const (
	StageKindBeforeScript StageKind = "before_script"
	StageKindScript       StageKind = "script"
)

// StageCommand describes one opaque stage handed to the stage executor. The
// orchestrator never interprets the command beyond passing it through.
type StageCommand struct {
	JobName     string
	Kind        StageKind
	Command     string
	Environment map[string]string
}

// StageResult carries the observable result of an executed stage.
type StageResult struct {
	ExitCode       int
	StandardOutput string
	StandardError  string
}

// StepOutcome records one stage execution. Immutable once recorded.
type StepOutcome struct {
	Kind           StageKind
	Command        string
	Status         StepStatus
	ExitCode       int
	StandardOutput string
	StandardError  string
	Duration       time.Duration
}

// JobOutcome aggregates the step outcomes of a single job.
type JobOutcome struct {
	Specification matrix.JobSpec
	Status        JobStatus
	Steps         []StepOutcome
	AllowFailure  bool
	Duration      time.Duration
}

// Failed reports whether the job finished with a failing step.
func (outcome JobOutcome) Failed() bool {
	return outcome.Status == JobStatusFailure
}

// RequiredFailure reports whether the failure counts against the build verdict.
func (outcome JobOutcome) RequiredFailure() bool {
	return outcome.Status == JobStatusFailure && !outcome.AllowFailure
}

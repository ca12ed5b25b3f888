// Package report freezes a coordinated build result into an immutable,
// serializable report and computes the overall build verdict.
package report

import (
	"time"

	"github.com/tyemirov/matrixci/internal/coordinator"
	"github.com/tyemirov/matrixci/internal/runner"
)

// Verdict is the single pass or fail answer for a build.
type Verdict string

// Build verdicts.
const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
)

// StepReport is the serialized form of one executed pipeline stage.
type StepReport struct {
	Command  string `json:"command" yaml:"command"`
	Kind     string `json:"kind" yaml:"kind"`
	Status   string `json:"status" yaml:"status"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
}

// JobReport is the serialized form of one job's outcome.
type JobReport struct {
	Name                 string            `json:"name" yaml:"name"`
	AxisValues           map[string]string `json:"axis_values,omitempty" yaml:"axis_values,omitempty"`
	Status               string            `json:"status" yaml:"status"`
	AllowFailure         bool              `json:"allow_failure" yaml:"allow_failure"`
	FromInclude          bool              `json:"from_include" yaml:"from_include"`
	DurationMilliseconds int64             `json:"duration_ms" yaml:"duration_ms"`
	Steps                []StepReport      `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// RequiredFailure reports whether the job's failure counts against the verdict.
func (jobReport JobReport) RequiredFailure() bool {
	return jobReport.Status == string(runner.JobStatusFailure) && !jobReport.AllowFailure
}

// BuildReport is the frozen, serializable record of one build.
type BuildReport struct {
	Verdict              Verdict     `json:"verdict" yaml:"verdict"`
	State                string      `json:"state" yaml:"state"`
	Jobs                 []JobReport `json:"jobs" yaml:"jobs"`
	SucceededCount       int         `json:"succeeded" yaml:"succeeded"`
	FailedCount          int         `json:"failed" yaml:"failed"`
	AllowedFailureCount  int         `json:"allowed_failures" yaml:"allowed_failures"`
	CancelledCount       int         `json:"cancelled" yaml:"cancelled"`
	StartTime            time.Time   `json:"start_time" yaml:"start_time"`
	DurationMilliseconds int64       `json:"duration_ms" yaml:"duration_ms"`
}

// Succeeded reports whether the build verdict is success.
func (buildReport BuildReport) Succeeded() bool {
	return buildReport.Verdict == VerdictSuccess
}

// FirstRequiredFailure returns the first failed job that counts against the
// verdict, in job declaration order, or nil when none failed.
func (buildReport BuildReport) FirstRequiredFailure() *JobReport {
	for jobIndex := range buildReport.Jobs {
		if buildReport.Jobs[jobIndex].RequiredFailure() {
			return &buildReport.Jobs[jobIndex]
		}
	}
	return nil
}

// NewBuildReport aggregates a build result into a report. The verdict is
// failure exactly when the build aborted or any job without allow_failure
// failed; allowed failures never flip a passing verdict.
func NewBuildReport(buildResult coordinator.BuildResult) BuildReport {
	buildReport := BuildReport{
		State:                string(buildResult.State),
		Jobs:                 make([]JobReport, 0, len(buildResult.Records)),
		StartTime:            buildResult.StartTime,
		DurationMilliseconds: buildResult.Duration.Milliseconds(),
	}

	requiredFailureObserved := false
	for _, record := range buildResult.Records {
		jobReport := JobReport{
			Name:                 record.Specification.Name,
			AxisValues:           record.Specification.AxisValues,
			Status:               string(record.Status),
			AllowFailure:         record.AllowFailure,
			FromInclude:          record.Specification.FromInclude,
			DurationMilliseconds: record.Duration.Milliseconds(),
			Steps:                make([]StepReport, 0, len(record.Steps)),
		}
		for _, stepOutcome := range record.Steps {
			jobReport.Steps = append(jobReport.Steps, StepReport{
				Command:  stepOutcome.Command,
				Kind:     string(stepOutcome.Kind),
				Status:   string(stepOutcome.Status),
				ExitCode: stepOutcome.ExitCode,
			})
		}

		switch record.Status {
		case runner.JobStatusSuccess:
			buildReport.SucceededCount++
		case runner.JobStatusFailure:
			buildReport.FailedCount++
			if record.AllowFailure {
				buildReport.AllowedFailureCount++
			} else {
				requiredFailureObserved = true
			}
		case runner.JobStatusCancelled:
			buildReport.CancelledCount++
		}

		buildReport.Jobs = append(buildReport.Jobs, jobReport)
	}

	buildReport.Verdict = VerdictSuccess
	if requiredFailureObserved || buildResult.State == coordinator.BuildStateAborted {
		buildReport.Verdict = VerdictFailure
	}

	return buildReport
}

// Package runner executes one job specification at a time: stages run
// strictly in declaration order through an injected stage executor, and the
// first failing stage short-circuits the remainder of that job.
package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/matrixci/internal/matrix"
)

const (
	loggerNotConfiguredMessageConstant        = "job runner logger not configured"
	stageExecutorNotConfiguredMessageConstant = "job runner stage executor not configured"
	jobStartMessageConstant                   = "job execution starting"
	jobFinishedMessageConstant                = "job execution finished"
	stageFailureMessageConstant               = "stage reported failure"
	jobNameFieldNameConstant                  = "job"
	jobStatusFieldNameConstant                = "status"
	stageKindFieldNameConstant                = "stage_kind"
	stageCommandFieldNameConstant             = "stage_command"
	exitCodeFieldNameConstant                 = "exit_code"
	stageCountFieldNameConstant               = "stage_count"
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrStageExecutorNotConfigured indicates the stage executor dependency was missing.
	ErrStageExecutorNotConfigured = errors.New(stageExecutorNotConfiguredMessageConstant)
)

// StageExecutor is the external capability that performs a stage's actual
// work. A non-zero exit code is an ordinary result, not an error; the error
// return is reserved for the executor being unable to run the stage at all.
type StageExecutor interface {
	ExecuteStage(executionContext context.Context, command StageCommand) (StageResult, error)
}

// Runner executes job specifications sequentially, stage by stage.
type Runner struct {
	logger        *zap.Logger
	stageExecutor StageExecutor
	clock         func() time.Time
}

// NewRunner constructs a Runner from its collaborators.
func NewRunner(logger *zap.Logger, stageExecutor StageExecutor) (*Runner, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if stageExecutor == nil {
		return nil, ErrStageExecutorNotConfigured
	}
	return &Runner{logger: logger, stageExecutor: stageExecutor, clock: time.Now}, nil
}

// Run executes every stage of the specification in declaration order. The
// first Failure marks all remaining stages Skipped; cancellation is polled
// between stages and never interrupts a stage already in progress.
func (jobRunner *Runner) Run(executionContext context.Context, specification matrix.JobSpec) JobOutcome {
	jobStart := jobRunner.clock()
	stageCommands := buildStageCommands(specification)

	jobRunner.logger.Debug(jobStartMessageConstant,
		zap.String(jobNameFieldNameConstant, specification.Name),
		zap.Int(stageCountFieldNameConstant, len(stageCommands)),
	)

	stepOutcomes := make([]StepOutcome, 0, len(stageCommands))
	stageFailed := false
	cancelled := false

	for _, stageCommand := range stageCommands {
		if stageFailed || cancelled {
			stepOutcomes = append(stepOutcomes, StepOutcome{
				Kind:    stageCommand.Kind,
				Command: stageCommand.Command,
				Status:  StepStatusSkipped,
			})
			continue
		}

		if executionContext.Err() != nil {
			cancelled = true
			stepOutcomes = append(stepOutcomes, StepOutcome{
				Kind:    stageCommand.Kind,
				Command: stageCommand.Command,
				Status:  StepStatusSkipped,
			})
			continue
		}

		stepOutcomes = append(stepOutcomes, jobRunner.executeStage(executionContext, stageCommand))
		if stepOutcomes[len(stepOutcomes)-1].Status == StepStatusFailure {
			stageFailed = true
		}
	}

	outcome := JobOutcome{
		Specification: specification,
		Steps:         stepOutcomes,
		AllowFailure:  specification.AllowFailure,
		Duration:      jobRunner.clock().Sub(jobStart),
	}
	switch {
	case stageFailed:
		outcome.Status = JobStatusFailure
	case cancelled:
		outcome.Status = JobStatusCancelled
	default:
		outcome.Status = JobStatusSuccess
	}

	jobRunner.logger.Debug(jobFinishedMessageConstant,
		zap.String(jobNameFieldNameConstant, specification.Name),
		zap.String(jobStatusFieldNameConstant, string(outcome.Status)),
	)

	return outcome
}

// executeStage converts every stage-executor failure mode into a StepOutcome;
// errors never propagate past the runner boundary.
func (jobRunner *Runner) executeStage(executionContext context.Context, stageCommand StageCommand) StepOutcome {
	stageStart := jobRunner.clock()
	stageResult, executionError := jobRunner.stageExecutor.ExecuteStage(executionContext, stageCommand)
	stageDuration := jobRunner.clock().Sub(stageStart)

	stepOutcome := StepOutcome{
		Kind:           stageCommand.Kind,
		Command:        stageCommand.Command,
		ExitCode:       stageResult.ExitCode,
		StandardOutput: stageResult.StandardOutput,
		StandardError:  stageResult.StandardError,
		Duration:       stageDuration,
	}

	if executionError != nil {
		stepOutcome.Status = StepStatusFailure
		stepOutcome.StandardError = executionError.Error()
		jobRunner.logger.Warn(stageFailureMessageConstant,
			zap.String(jobNameFieldNameConstant, stageCommand.JobName),
			zap.String(stageKindFieldNameConstant, string(stageCommand.Kind)),
			zap.String(stageCommandFieldNameConstant, stageCommand.Command),
			zap.Error(executionError),
		)
		return stepOutcome
	}

	if stageResult.ExitCode != 0 {
		stepOutcome.Status = StepStatusFailure
		jobRunner.logger.Warn(stageFailureMessageConstant,
			zap.String(jobNameFieldNameConstant, stageCommand.JobName),
			zap.String(stageKindFieldNameConstant, string(stageCommand.Kind)),
			zap.String(stageCommandFieldNameConstant, stageCommand.Command),
			zap.Int(exitCodeFieldNameConstant, stageResult.ExitCode),
		)
		return stepOutcome
	}

	stepOutcome.Status = StepStatusSuccess
	return stepOutcome
}

func buildStageCommands(specification matrix.JobSpec) []StageCommand {
	stageCommands := make([]StageCommand, 0, specification.StageCount())
	for _, stage := range specification.BeforeScript {
		stageCommands = append(stageCommands, StageCommand{
			JobName:     specification.Name,
			Kind:        StageKindBeforeScript,
			Command:     stage,
			Environment: specification.Environment,
		})
	}
	for _, stage := range specification.Script {
		stageCommands = append(stageCommands, StageCommand{
			JobName:     specification.Name,
			Kind:        StageKindScript,
			Command:     stage,
			Environment: specification.Environment,
		})
	}
	return stageCommands
}

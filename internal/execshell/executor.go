// Package execshell provides the default stage executor: it hands each opaque
// stage command to a POSIX shell and reports the observable result without
// interpreting the command's contents.
package execshell

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tyemirov/matrixci/internal/runner"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	stageCommandMissingMessageConstant        = "stage command not provided"
	stageStartMessageConstant                 = "stage execution starting"
	stageSuccessMessageConstant               = "stage execution completed"
	stageNonZeroMessageConstant               = "stage returned non-zero status"
	stageRunnerErrorMessageConstant           = "stage execution error"
	jobFieldNameConstant                      = "job"
	stageKindFieldNameConstant                = "stage_kind"
	stageCommandFieldNameConstant             = "stage_command"
	exitCodeFieldNameConstant                 = "exit_code"
	standardErrorFieldNameConstant            = "stderr"
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the command runner dependency was missing.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
	// ErrStageCommandMissing indicates the stage carried an empty command string.
	ErrStageCommandMissing = errors.New(stageCommandMissingMessageConstant)
)

// ShellInvocation describes one shell run derived from a stage command.
type ShellInvocation struct {
	Command              string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
}

// ExecutionResult captures the observable results of a shell run.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner spawns shell processes. A non-zero exit code is an ordinary
// ExecutionResult; the error return is reserved for spawn failures.
type CommandRunner interface {
	Run(executionContext context.Context, invocation ShellInvocation) (ExecutionResult, error)
}

// StageExecutionError wraps a runner failure that prevented the stage from
// executing at all.
type StageExecutionError struct {
	Invocation ShellInvocation
	Cause      error
}

const stageExecutionErrorMessageTemplateConstant = "stage %q execution failed: %v"

// Error describes the underlying runner failure.
func (executionError StageExecutionError) Error() string {
	return fmt.Sprintf(stageExecutionErrorMessageTemplateConstant, executionError.Invocation.Command, executionError.Cause)
}

// Unwrap exposes the underlying error.
func (executionError StageExecutionError) Unwrap() error {
	return executionError.Cause
}

// ShellExecutor implements runner.StageExecutor with lifecycle logging.
type ShellExecutor struct {
	commandRunner    CommandRunner
	logger           *zap.Logger
	workingDirectory string
}

// NewShellExecutor builds an executor for the provided runner and logger. The
// working directory applies to every spawned stage; empty means inherit.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, workingDirectory string) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		commandRunner:    commandRunner,
		logger:           logger,
		workingDirectory: workingDirectory,
	}, nil
}

// ExecuteStage runs one stage command through the shell and logs lifecycle
// events. Non-zero exits are reported in the StageResult, never as an error.
func (executor *ShellExecutor) ExecuteStage(executionContext context.Context, command runner.StageCommand) (runner.StageResult, error) {
	if len(command.Command) == 0 {
		return runner.StageResult{}, ErrStageCommandMissing
	}

	invocation := ShellInvocation{
		Command:              command.Command,
		WorkingDirectory:     executor.workingDirectory,
		EnvironmentVariables: command.Environment,
	}

	executor.logger.Info(stageStartMessageConstant,
		zap.String(jobFieldNameConstant, command.JobName),
		zap.String(stageKindFieldNameConstant, string(command.Kind)),
		zap.String(stageCommandFieldNameConstant, command.Command),
	)

	executionResult, runnerError := executor.commandRunner.Run(executionContext, invocation)
	if runnerError != nil {
		executor.logger.Error(stageRunnerErrorMessageConstant,
			zap.String(jobFieldNameConstant, command.JobName),
			zap.String(stageCommandFieldNameConstant, command.Command),
			zap.Error(runnerError),
		)
		return runner.StageResult{}, StageExecutionError{Invocation: invocation, Cause: runnerError}
	}

	if executionResult.ExitCode != 0 {
		executor.logger.Warn(stageNonZeroMessageConstant,
			zap.String(jobFieldNameConstant, command.JobName),
			zap.String(stageCommandFieldNameConstant, command.Command),
			zap.Int(exitCodeFieldNameConstant, executionResult.ExitCode),
			zap.String(standardErrorFieldNameConstant, executionResult.StandardError),
		)
	} else {
		executor.logger.Info(stageSuccessMessageConstant,
			zap.String(jobFieldNameConstant, command.JobName),
			zap.String(stageCommandFieldNameConstant, command.Command),
		)
	}

	return runner.StageResult{
		ExitCode:       executionResult.ExitCode,
		StandardOutput: executionResult.StandardOutput,
		StandardError:  executionResult.StandardError,
	}, nil
}

// Package buildrunner is the embeddable entry point for running a build
// matrix. It wires the matrix model, job runner, and coordinator together and
// exposes a small Executor surface so hosts can swap the execution backend.
package buildrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/matrixci/internal/coordinator"
	"github.com/tyemirov/matrixci/internal/execshell"
	"github.com/tyemirov/matrixci/internal/matrix"
	"github.com/tyemirov/matrixci/internal/report"
	"github.com/tyemirov/matrixci/internal/runner"
)

const (
	resolveStageExecutorErrorTemplateConstant = "resolve stage executor: %w"
	buildRunnerErrorTemplateConstant          = "run build matrix: %w"
	missingLoggerMessageConstant              = "build runner logger not configured"
)

// ErrLoggerNotConfigured indicates Dependencies lacked a logger.
var ErrLoggerNotConfigured = errors.New(missingLoggerMessageConstant)

// Outcome carries the frozen build report back to the caller.
type Outcome struct {
	Report report.BuildReport
}

// Dependencies supplies the collaborators a build run needs. StageExecutor is
// optional; when nil a shell-backed executor rooted at WorkingDirectory is
// used.
type Dependencies struct {
	Logger           *zap.Logger
	Output           io.Writer
	Errors           io.Writer
	WorkingDirectory string
	StageExecutor    runner.StageExecutor
	DisableSummary   bool
}

// Executor runs one build matrix configuration to completion.
type Executor interface {
	Run(executionContext context.Context, configuration matrix.Configuration) (Outcome, error)
}

// Factory constructs an Executor given build dependencies.
type Factory func(Dependencies) Executor

// Resolve returns either the provided factory result or the default matrix
// build executor, decorated so a summary line is printed after every run.
func Resolve(factory Factory, dependencies Dependencies) Executor {
	var base Executor
	if factory != nil {
		base = factory(dependencies)
	}
	if base == nil {
		base = matrixExecutor{dependencies: dependencies}
	}
	return summaryExecutor{
		delegate:     base,
		dependencies: dependencies,
	}
}

type matrixExecutor struct {
	dependencies Dependencies
}

func (executor matrixExecutor) Run(executionContext context.Context, configuration matrix.Configuration) (Outcome, error) {
	if executor.dependencies.Logger == nil {
		return Outcome{}, ErrLoggerNotConfigured
	}

	buildModel, modelError := matrix.NewModelFromConfiguration(configuration)
	if modelError != nil {
		return Outcome{}, fmt.Errorf(buildRunnerErrorTemplateConstant, modelError)
	}

	stageExecutor, stageExecutorError := executor.resolveStageExecutor()
	if stageExecutorError != nil {
		return Outcome{}, fmt.Errorf(resolveStageExecutorErrorTemplateConstant, stageExecutorError)
	}

	jobRunner, runnerError := runner.NewRunner(executor.dependencies.Logger, stageExecutor)
	if runnerError != nil {
		return Outcome{}, fmt.Errorf(buildRunnerErrorTemplateConstant, runnerError)
	}

	buildCoordinator, coordinatorError := coordinator.NewCoordinator(
		executor.dependencies.Logger,
		jobRunner,
		coordinator.Options{
			WorkerCount: configuration.MaxWorkers,
			FailFast:    configuration.FailFastEnabled(),
		},
	)
	if coordinatorError != nil {
		return Outcome{}, fmt.Errorf(buildRunnerErrorTemplateConstant, coordinatorError)
	}

	buildResult, executionError := buildCoordinator.Execute(executionContext, buildModel.Expand())
	if executionError != nil {
		return Outcome{}, fmt.Errorf(buildRunnerErrorTemplateConstant, executionError)
	}

	return Outcome{Report: report.NewBuildReport(buildResult)}, nil
}

func (executor matrixExecutor) resolveStageExecutor() (runner.StageExecutor, error) {
	if executor.dependencies.StageExecutor != nil {
		return executor.dependencies.StageExecutor, nil
	}
	return execshell.NewShellExecutor(
		executor.dependencies.Logger,
		execshell.NewOSCommandRunner(),
		executor.dependencies.WorkingDirectory,
	)
}

type summaryExecutor struct {
	delegate     Executor
	dependencies Dependencies
}

func (executor summaryExecutor) Run(executionContext context.Context, configuration matrix.Configuration) (Outcome, error) {
	outcome, runError := executor.delegate.Run(executionContext, configuration)
	if runError == nil {
		executor.printSummary(outcome)
	}
	return outcome, runError
}

func (executor summaryExecutor) printSummary(outcome Outcome) {
	if executor.dependencies.DisableSummary {
		return
	}
	writer := executor.summaryWriter()
	if writer == nil {
		return
	}

	summary := report.RenderSummaryLine(outcome.Report)
	if len(strings.TrimSpace(summary)) == 0 {
		return
	}
	fmt.Fprintln(writer, summary)
}

func (executor summaryExecutor) summaryWriter() io.Writer {
	if executor.dependencies.Errors != nil {
		return executor.dependencies.Errors
	}
	if executor.dependencies.Output != nil {
		return executor.dependencies.Output
	}
	return nil
}

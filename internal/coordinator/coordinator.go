// Package coordinator schedules expanded job specifications across a bounded
// worker pool, owns the mutable build result while the run is in flight, and
// applies the fail-fast cancellation policy.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/matrixci/internal/matrix"
	"github.com/tyemirov/matrixci/internal/runner"
)

const (
	loggerNotConfiguredMessageConstant      = "coordinator logger not configured"
	jobExecutorNotConfiguredMessageConstant = "coordinator job executor not configured"
	coordinationInvariantMessageConstant    = "build coordination invariant violated"
	duplicateOutcomeErrorTemplateConstant   = "duplicate outcome received for job %q"
	buildStartingMessageConstant            = "build execution starting"
	buildFinishedMessageConstant            = "build execution finished"
	failFastTriggeredMessageConstant        = "required job failed; cancelling outstanding jobs"
	jobCountFieldNameConstant               = "job_count"
	workerCountFieldNameConstant            = "worker_count"
	failFastFieldNameConstant               = "fail_fast"
	buildStateFieldNameConstant             = "state"
	jobNameFieldNameConstant                = "job"
)

// BuildState describes the coordinator's lifecycle.
type BuildState string

// Build states. Pending and Running are transient; Completed and Aborted are
// terminal.
const (
	BuildStatePending   BuildState = "pending"
	BuildStateRunning   BuildState = "running"
	BuildStateCompleted BuildState = "completed"
	BuildStateAborted   BuildState = "aborted"
)

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrJobExecutorNotConfigured indicates the job executor dependency was missing.
	ErrJobExecutorNotConfigured = errors.New(jobExecutorNotConfiguredMessageConstant)
	// ErrCoordinationInvariant is the root of internal coordination defects.
	ErrCoordinationInvariant = errors.New(coordinationInvariantMessageConstant)
)

// DuplicateOutcomeError reports two outcomes arriving for the same job. This
// is an internal defect, not a build failure.
type DuplicateOutcomeError struct {
	JobName string
}

// Error implements the error interface.
func (errorDetails DuplicateOutcomeError) Error() string {
	return fmt.Sprintf(duplicateOutcomeErrorTemplateConstant, errorDetails.JobName)
}

// Unwrap ties the error into the coordination taxonomy.
func (errorDetails DuplicateOutcomeError) Unwrap() error {
	return ErrCoordinationInvariant
}

// JobExecutor runs one job specification to completion. Satisfied by
// runner.Runner.
type JobExecutor interface {
	Run(executionContext context.Context, specification matrix.JobSpec) runner.JobOutcome
}

// JobRecord is the per-job row of a build result. Dispatched is false for
// jobs the fail-fast policy prevented from ever starting.
type JobRecord struct {
	Specification matrix.JobSpec
	Status        runner.JobStatus
	Steps         []runner.StepOutcome
	AllowFailure  bool
	Duration      time.Duration
	Dispatched    bool
}

// RequiredFailure reports whether the record's failure counts against the
// build verdict.
func (record JobRecord) RequiredFailure() bool {
	return record.Status == runner.JobStatusFailure && !record.AllowFailure
}

// BuildResult is the frozen outcome of one coordinated run. Records preserve
// job declaration order.
type BuildResult struct {
	State     BuildState
	Records   []JobRecord
	StartTime time.Time
	Duration  time.Duration
}

// Options tune a coordinated run.
type Options struct {
	WorkerCount int
	FailFast    bool
}

// Coordinator dispatches jobs and is the sole writer of the build result.
// Workers communicate finished outcomes by message, never by shared state.
type Coordinator struct {
	logger      *zap.Logger
	jobExecutor JobExecutor
	workerCount int
	failFast    bool
	clock       func() time.Time
}

// NewCoordinator constructs a Coordinator. A non-positive worker count
// defaults to the machine's logical CPU count.
func NewCoordinator(logger *zap.Logger, jobExecutor JobExecutor, options Options) (*Coordinator, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if jobExecutor == nil {
		return nil, ErrJobExecutorNotConfigured
	}

	workerCount := options.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	return &Coordinator{
		logger:      logger,
		jobExecutor: jobExecutor,
		workerCount: workerCount,
		failFast:    options.FailFast,
		clock:       time.Now,
	}, nil
}

type indexedJob struct {
	jobIndex      int
	specification matrix.JobSpec
}

// indexedOutcome carries a finished outcome back to the coordinator. The
// worker waits on recorded before taking another job, so every outcome is
// fully processed (including a fail-fast cancellation) before the pool moves
// on. Without the handshake a worker could start a job in the window between
// failure detection and context cancellation.
type indexedOutcome struct {
	jobIndex int
	outcome  runner.JobOutcome
	recorded chan struct{}
}

// Execute runs every specification through the worker pool and returns the
// frozen build result. The returned error is reserved for internal
// coordination defects; job failures are reported through the result.
func (buildCoordinator *Coordinator) Execute(executionContext context.Context, specifications []matrix.JobSpec) (BuildResult, error) {
	buildStart := buildCoordinator.clock()

	buildCoordinator.logger.Info(buildStartingMessageConstant,
		zap.String(buildStateFieldNameConstant, string(BuildStatePending)),
		zap.Int(jobCountFieldNameConstant, len(specifications)),
		zap.Int(workerCountFieldNameConstant, buildCoordinator.workerCount),
		zap.Bool(failFastFieldNameConstant, buildCoordinator.failFast),
	)

	if len(specifications) == 0 {
		return BuildResult{State: BuildStateCompleted, StartTime: buildStart}, nil
	}

	runContext, cancelRun := context.WithCancel(executionContext)
	defer cancelRun()

	workChannel := make(chan indexedJob)
	outcomeChannel := make(chan indexedOutcome)

	workerCount := buildCoordinator.workerCount
	if workerCount > len(specifications) {
		workerCount = len(specifications)
	}

	var workerGroup sync.WaitGroup
	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		workerGroup.Add(1)
		go func() {
			defer workerGroup.Done()
			for dispatchedJob := range workChannel {
				var jobOutcome runner.JobOutcome
				if runContext.Err() != nil {
					jobOutcome = runner.JobOutcome{
						Specification: dispatchedJob.specification,
						Status:        runner.JobStatusCancelled,
						AllowFailure:  dispatchedJob.specification.AllowFailure,
					}
				} else {
					jobOutcome = buildCoordinator.jobExecutor.Run(runContext, dispatchedJob.specification)
				}

				recordedSignal := make(chan struct{})
				outcomeChannel <- indexedOutcome{
					jobIndex: dispatchedJob.jobIndex,
					outcome:  jobOutcome,
					recorded: recordedSignal,
				}
				<-recordedSignal
			}
		}()
	}

	go func() {
		defer close(workChannel)
		for jobIndex := range specifications {
			if runContext.Err() != nil {
				return
			}
			select {
			case workChannel <- indexedJob{jobIndex: jobIndex, specification: specifications[jobIndex]}:
			case <-runContext.Done():
				return
			}
		}
	}()

	go func() {
		workerGroup.Wait()
		close(outcomeChannel)
	}()

	recordedOutcomes := make([]*runner.JobOutcome, len(specifications))
	recordedCount := 0
	aborted := false

	for arrivedOutcome := range outcomeChannel {
		if recordedOutcomes[arrivedOutcome.jobIndex] != nil {
			cancelRun()
			close(arrivedOutcome.recorded)
			go func() {
				for leftoverOutcome := range outcomeChannel {
					close(leftoverOutcome.recorded)
				}
			}()
			return BuildResult{}, DuplicateOutcomeError{JobName: arrivedOutcome.outcome.Specification.Name}
		}
		outcomeCopy := arrivedOutcome.outcome
		recordedOutcomes[arrivedOutcome.jobIndex] = &outcomeCopy
		recordedCount++

		if buildCoordinator.failFast && outcomeCopy.RequiredFailure() && !aborted && recordedCount < len(specifications) {
			aborted = true
			buildCoordinator.logger.Warn(failFastTriggeredMessageConstant,
				zap.String(jobNameFieldNameConstant, outcomeCopy.Specification.Name),
			)
			cancelRun()
		}

		close(arrivedOutcome.recorded)
	}

	records := make([]JobRecord, len(specifications))
	anyJobCancelled := false
	for jobIndex := range specifications {
		recordedOutcome := recordedOutcomes[jobIndex]
		if recordedOutcome == nil {
			anyJobCancelled = true
			records[jobIndex] = JobRecord{
				Specification: specifications[jobIndex],
				Status:        runner.JobStatusCancelled,
				AllowFailure:  specifications[jobIndex].AllowFailure,
			}
			continue
		}
		if recordedOutcome.Status == runner.JobStatusCancelled {
			anyJobCancelled = true
		}
		records[jobIndex] = JobRecord{
			Specification: recordedOutcome.Specification,
			Status:        recordedOutcome.Status,
			Steps:         recordedOutcome.Steps,
			AllowFailure:  recordedOutcome.AllowFailure,
			Duration:      recordedOutcome.Duration,
			Dispatched:    true,
		}
	}

	terminalState := BuildStateCompleted
	if aborted || anyJobCancelled {
		terminalState = BuildStateAborted
	}

	buildResult := BuildResult{
		State:     terminalState,
		Records:   records,
		StartTime: buildStart,
		Duration:  buildCoordinator.clock().Sub(buildStart),
	}

	buildCoordinator.logger.Info(buildFinishedMessageConstant,
		zap.String(buildStateFieldNameConstant, string(terminalState)),
		zap.Int(jobCountFieldNameConstant, len(records)),
	)

	return buildResult, nil
}

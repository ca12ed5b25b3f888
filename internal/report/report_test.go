package report_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/matrixci/internal/coordinator"
	"github.com/tyemirov/matrixci/internal/matrix"
	"github.com/tyemirov/matrixci/internal/report"
	"github.com/tyemirov/matrixci/internal/runner"
)

const (
	subtestNameTemplateConstant          = "%d_%s"
	allJobsSucceedCaseNameConstant       = "all_jobs_succeed"
	requiredFailureCaseNameConstant      = "required_failure_fails_build"
	allowedFailureOnlyCaseNameConstant   = "allowed_failure_keeps_success"
	abortedBuildCaseNameConstant         = "aborted_build_fails"
	cancelledJobsCountedCaseNameConstant = "cancelled_jobs_counted"
)

func jobRecord(jobName string, jobStatus runner.JobStatus, allowFailure bool) coordinator.JobRecord {
	return coordinator.JobRecord{
		Specification: matrix.JobSpec{Name: jobName, AllowFailure: allowFailure},
		Status:        jobStatus,
		AllowFailure:  allowFailure,
		Duration:      25 * time.Millisecond,
		Dispatched:    jobStatus != runner.JobStatusCancelled,
	}
}

func TestNewBuildReportVerdict(testInstance *testing.T) {
	testCases := []struct {
		name              string
		buildState        coordinator.BuildState
		records           []coordinator.JobRecord
		expectedVerdict   report.Verdict
		expectedOK        int
		expectedFailed    int
		expectedAllowed   int
		expectedCancelled int
	}{
		{
			name:       allJobsSucceedCaseNameConstant,
			buildState: coordinator.BuildStateCompleted,
			records: []coordinator.JobRecord{
				jobRecord("rust=stable", runner.JobStatusSuccess, false),
				jobRecord("rust=beta", runner.JobStatusSuccess, false),
			},
			expectedVerdict: report.VerdictSuccess,
			expectedOK:      2,
		},
		{
			name:       requiredFailureCaseNameConstant,
			buildState: coordinator.BuildStateCompleted,
			records: []coordinator.JobRecord{
				jobRecord("rust=stable", runner.JobStatusSuccess, false),
				jobRecord("rust=beta", runner.JobStatusFailure, false),
			},
			expectedVerdict: report.VerdictFailure,
			expectedOK:      1,
			expectedFailed:  1,
		},
		{
			name:       allowedFailureOnlyCaseNameConstant,
			buildState: coordinator.BuildStateCompleted,
			records: []coordinator.JobRecord{
				jobRecord("rust=stable", runner.JobStatusSuccess, false),
				jobRecord("rust=nightly", runner.JobStatusFailure, true),
			},
			expectedVerdict: report.VerdictSuccess,
			expectedOK:      1,
			expectedFailed:  1,
			expectedAllowed: 1,
		},
		{
			name:       abortedBuildCaseNameConstant,
			buildState: coordinator.BuildStateAborted,
			records: []coordinator.JobRecord{
				jobRecord("rust=stable", runner.JobStatusSuccess, false),
			},
			expectedVerdict: report.VerdictFailure,
			expectedOK:      1,
		},
		{
			name:       cancelledJobsCountedCaseNameConstant,
			buildState: coordinator.BuildStateAborted,
			records: []coordinator.JobRecord{
				jobRecord("rust=stable", runner.JobStatusFailure, false),
				jobRecord("rust=beta", runner.JobStatusCancelled, false),
				jobRecord("rust=nightly", runner.JobStatusCancelled, true),
			},
			expectedVerdict:   report.VerdictFailure,
			expectedFailed:    1,
			expectedCancelled: 2,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(subtestNameTemplateConstant, testCaseIndex, testCase.name), func(subtestInstance *testing.T) {
			buildReport := report.NewBuildReport(coordinator.BuildResult{
				State:    testCase.buildState,
				Records:  testCase.records,
				Duration: 120 * time.Millisecond,
			})

			require.Equal(subtestInstance, testCase.expectedVerdict, buildReport.Verdict)
			require.Equal(subtestInstance, testCase.expectedOK, buildReport.SucceededCount)
			require.Equal(subtestInstance, testCase.expectedFailed, buildReport.FailedCount)
			require.Equal(subtestInstance, testCase.expectedAllowed, buildReport.AllowedFailureCount)
			require.Equal(subtestInstance, testCase.expectedCancelled, buildReport.CancelledCount)
			require.Len(subtestInstance, buildReport.Jobs, len(testCase.records))
		})
	}
}

func TestFirstRequiredFailureSkipsAllowedFailures(testInstance *testing.T) {
	buildReport := report.NewBuildReport(coordinator.BuildResult{
		State: coordinator.BuildStateCompleted,
		Records: []coordinator.JobRecord{
			jobRecord("rust=nightly", runner.JobStatusFailure, true),
			jobRecord("rust=stable", runner.JobStatusFailure, false),
			jobRecord("rust=beta", runner.JobStatusFailure, false),
		},
	})

	firstFailure := buildReport.FirstRequiredFailure()
	require.NotNil(testInstance, firstFailure)
	require.Equal(testInstance, "rust=stable", firstFailure.Name)
}

func TestRenderSummaryLine(testInstance *testing.T) {
	buildReport := report.NewBuildReport(coordinator.BuildResult{
		State: coordinator.BuildStateCompleted,
		Records: []coordinator.JobRecord{
			jobRecord("rust=stable", runner.JobStatusSuccess, false),
			jobRecord("rust=nightly", runner.JobStatusFailure, true),
		},
		Duration: 95 * time.Millisecond,
	})

	summaryLine := report.RenderSummaryLine(buildReport)
	require.Equal(
		testInstance,
		"Summary: verdict=success state=completed jobs=2 ok=1 failed=1 allowed_failures=1 cancelled=0 duration_ms=95",
		summaryLine,
	)
}

func TestWriteHumanReport(testInstance *testing.T) {
	buildReport := report.NewBuildReport(coordinator.BuildResult{
		State: coordinator.BuildStateAborted,
		Records: []coordinator.JobRecord{
			jobRecord("rust=stable", runner.JobStatusSuccess, false),
			jobRecord("rust=beta", runner.JobStatusFailure, false),
			jobRecord("rust=nightly", runner.JobStatusCancelled, true),
		},
	})

	var renderedReport bytes.Buffer
	require.NoError(testInstance, report.WriteHumanReport(&renderedReport, buildReport))

	renderedText := renderedReport.String()
	require.Contains(testInstance, renderedText, "ok   rust=stable")
	require.Contains(testInstance, renderedText, "FAIL rust=beta")
	require.Contains(testInstance, renderedText, "skip rust=nightly (cancelled)")
	require.Contains(testInstance, renderedText, "Summary: verdict=failure state=aborted")
	require.Contains(testInstance, renderedText, "First failure: rust=beta")
}

func TestEncodeReportFormats(testInstance *testing.T) {
	buildReport := report.NewBuildReport(coordinator.BuildResult{
		State: coordinator.BuildStateCompleted,
		Records: []coordinator.JobRecord{
			jobRecord("rust=stable", runner.JobStatusSuccess, false),
		},
	})

	encodedYAML, yamlError := report.EncodeYAML(buildReport)
	require.NoError(testInstance, yamlError)
	require.Contains(testInstance, encodedYAML, "verdict: success")
	require.Contains(testInstance, encodedYAML, "name: rust=stable")

	encodedJSON, jsonError := report.EncodeJSON(buildReport)
	require.NoError(testInstance, jsonError)
	require.Contains(testInstance, encodedJSON, "\"verdict\": \"success\"")
	require.Contains(testInstance, encodedJSON, "\"name\": \"rust=stable\"")
}

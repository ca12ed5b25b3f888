package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	summaryLinePrefixConstant             = "Summary:"
	firstFailureLinePrefixConstant        = "First failure:"
	successJobMarkerConstant              = "ok  "
	failureJobMarkerConstant              = "FAIL"
	allowedFailureJobMarkerConstant       = "fail"
	cancelledJobMarkerConstant            = "skip"
	allowedFailureAnnotationConstant      = " (allowed)"
	cancelledAnnotationConstant           = " (cancelled)"
	jobLineTemplateConstant               = "%s %s%s duration_ms=%d"
	reportEncodeErrorTemplateConstant     = "encode build report: %w"
	humanReportWriteErrorTemplateConstant = "write build report: %w"
)

// EncodeYAML renders the report as YAML.
func EncodeYAML(buildReport BuildReport) (string, error) {
	encodedReport, encodingError := yaml.Marshal(buildReport)
	if encodingError != nil {
		return "", fmt.Errorf(reportEncodeErrorTemplateConstant, encodingError)
	}
	return string(encodedReport), nil
}

// EncodeJSON renders the report as indented JSON.
func EncodeJSON(buildReport BuildReport) (string, error) {
	encodedReport, encodingError := json.MarshalIndent(buildReport, "", "  ")
	if encodingError != nil {
		return "", fmt.Errorf(reportEncodeErrorTemplateConstant, encodingError)
	}
	return string(encodedReport), nil
}

// RenderSummaryLine returns the single key=value summary line printed after a
// build.
func RenderSummaryLine(buildReport BuildReport) string {
	parts := []string{
		fmt.Sprintf("%s verdict=%s", summaryLinePrefixConstant, buildReport.Verdict),
		fmt.Sprintf("state=%s", buildReport.State),
		fmt.Sprintf("jobs=%d", len(buildReport.Jobs)),
		fmt.Sprintf("ok=%d", buildReport.SucceededCount),
		fmt.Sprintf("failed=%d", buildReport.FailedCount),
		fmt.Sprintf("allowed_failures=%d", buildReport.AllowedFailureCount),
		fmt.Sprintf("cancelled=%d", buildReport.CancelledCount),
		fmt.Sprintf("duration_ms=%d", buildReport.DurationMilliseconds),
	}
	return strings.Join(parts, " ")
}

func renderJobLine(jobReport JobReport) string {
	marker := successJobMarkerConstant
	annotation := ""
	switch jobReport.Status {
	case "failure":
		if jobReport.AllowFailure {
			marker = allowedFailureJobMarkerConstant
			annotation = allowedFailureAnnotationConstant
		} else {
			marker = failureJobMarkerConstant
		}
	case "cancelled":
		marker = cancelledJobMarkerConstant
		annotation = cancelledAnnotationConstant
	}
	return fmt.Sprintf(jobLineTemplateConstant, marker, jobReport.Name, annotation, jobReport.DurationMilliseconds)
}

// WriteHumanReport renders one line per job followed by the summary line and,
// when a required job failed, a pointer to the first such failure.
func WriteHumanReport(outputWriter io.Writer, buildReport BuildReport) error {
	lines := make([]string, 0, len(buildReport.Jobs)+2)
	for _, jobReport := range buildReport.Jobs {
		lines = append(lines, renderJobLine(jobReport))
	}
	lines = append(lines, RenderSummaryLine(buildReport))
	if firstFailure := buildReport.FirstRequiredFailure(); firstFailure != nil {
		lines = append(lines, fmt.Sprintf("%s %s", firstFailureLinePrefixConstant, firstFailure.Name))
	}

	if _, writeError := fmt.Fprintln(outputWriter, strings.Join(lines, "\n")); writeError != nil {
		return fmt.Errorf(humanReportWriteErrorTemplateConstant, writeError)
	}
	return nil
}

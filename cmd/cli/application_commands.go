package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/matrixci/internal/matrix"
	"github.com/tyemirov/matrixci/internal/report"
	"github.com/tyemirov/matrixci/internal/utils"
	flagutils "github.com/tyemirov/matrixci/internal/utils/flags"
	"github.com/tyemirov/matrixci/pkg/buildrunner"
)

const (
	runCommandUseNameConstant               = "run"
	runCommandShortDescriptionConstant      = "Expand the build matrix and execute every job"
	runCommandLongDescriptionConstant       = "run expands the configured build matrix into concrete jobs, executes them with bounded parallelism, and reports the aggregated verdict. The exit status is non-zero when the build fails."
	expandCommandUseNameConstant            = "expand"
	expandCommandShortDescriptionConstant   = "Print the jobs the build matrix expands into"
	expandCommandLongDescriptionConstant    = "expand resolves includes, excludes, and allow-failure rules and prints the resulting job list without executing anything."
	validateCommandUseNameConstant          = "validate"
	validateCommandShortDescriptionConstant = "Check the build matrix configuration"
	validateCommandLongDescriptionConstant  = "validate loads the configuration, builds the matrix model, and reports the first violation found."
	outputFlagNameConstant                  = "output"
	outputFlagUsageConstant                 = "Report output format."
	outputFormatHumanConstant               = "human"
	outputFormatYAMLConstant                = "yaml"
	outputFormatJSONConstant                = "json"
	workingDirectoryFlagNameConstant        = "workdir"
	workingDirectoryFlagUsageConstant       = "Directory stage commands run in (defaults to the current directory)."
	workerCountFlagNameConstant             = "jobs"
	workerCountFlagUsageConstant            = "Maximum number of jobs executed concurrently (0 selects the CPU count)."
	failFastFlagNameConstant                = "fail-fast"
	failFastFlagUsageConstant               = "Cancel outstanding jobs after the first required failure."
	unsupportedOutputFormatTemplateConstant = "unsupported output format %q"
	buildFailedMessageConstant              = "build failed"
	validateSuccessTemplateConstant         = "configuration valid: %d axes, %d jobs\n"
	invalidConfigurationTemplateConstant    = "invalid configuration: %w"
	expandJobLineTemplateConstant           = "%s\n"
	expandAllowFailureSuffixConstant        = " (allow_failure)"
	expandIncludeSuffixConstant             = " (include)"
)

// ErrBuildFailed signals a completed run whose verdict is failure. The main
// entrypoint maps it to a non-zero exit status.
var ErrBuildFailed = errors.New(buildFailedMessageConstant)

type expandedJobRow struct {
	Name         string            `json:"name" yaml:"name"`
	AxisValues   map[string]string `json:"axis_values,omitempty" yaml:"axis_values,omitempty"`
	Environment  map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	AllowFailure bool              `json:"allow_failure" yaml:"allow_failure"`
	FromInclude  bool              `json:"from_include" yaml:"from_include"`
	StageCount   int               `json:"stage_count" yaml:"stage_count"`
}

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	runBuilder := RunCommandBuilder{
		LoggerProvider:        func() *zap.Logger { return application.logger },
		ConfigurationProvider: func() ApplicationConfiguration { return application.configuration },
	}
	if runCommand, runBuildError := runBuilder.Build(); runBuildError == nil {
		cobraCommand.AddCommand(runCommand)
	}

	expandBuilder := ExpandCommandBuilder{
		ConfigurationProvider: func() ApplicationConfiguration { return application.configuration },
	}
	if expandCommand, expandBuildError := expandBuilder.Build(); expandBuildError == nil {
		cobraCommand.AddCommand(expandCommand)
	}

	validateBuilder := ValidateCommandBuilder{
		ConfigurationProvider: func() ApplicationConfiguration { return application.configuration },
	}
	if validateCommand, validateBuildError := validateBuilder.Build(); validateBuildError == nil {
		cobraCommand.AddCommand(validateCommand)
	}
}

// RunCommandBuilder assembles the run command.
type RunCommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	ConfigurationProvider func() ApplicationConfiguration
	ExecutorFactory       buildrunner.Factory
}

// Build constructs the run command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	runCommand := &cobra.Command{
		Use:           runCommandUseNameConstant,
		Short:         runCommandShortDescriptionConstant,
		Long:          runCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command)
		},
	}

	runCommand.Flags().String(outputFlagNameConstant, outputFormatHumanConstant, flagutils.FormatChoiceUsage(
		outputFormatHumanConstant,
		[]string{outputFormatHumanConstant, outputFormatYAMLConstant, outputFormatJSONConstant},
		outputFlagUsageConstant,
	))
	runCommand.Flags().String(workingDirectoryFlagNameConstant, "", workingDirectoryFlagUsageConstant)
	runCommand.Flags().Int(workerCountFlagNameConstant, 0, workerCountFlagUsageConstant)
	runCommand.Flags().Bool(failFastFlagNameConstant, true, failFastFlagUsageConstant)

	return runCommand, nil
}

func (builder *RunCommandBuilder) run(command *cobra.Command) error {
	configuration := builder.ConfigurationProvider()
	buildConfiguration := configuration.Build

	if command.Flags().Changed(workerCountFlagNameConstant) {
		if workerCount, workerCountError := command.Flags().GetInt(workerCountFlagNameConstant); workerCountError == nil {
			buildConfiguration.MaxWorkers = workerCount
		}
	}
	if failFastValue, failFastChanged, failFastError := flagutils.BoolFlag(command, failFastFlagNameConstant); failFastError == nil && failFastChanged {
		buildConfiguration.FailFast = &failFastValue
	}

	workingDirectory := configuration.Common.WorkingDirectory
	if contextWorkingDirectory, contextWorkingDirectoryAvailable := utils.NewCommandContextAccessor().WorkingDirectory(command.Context()); contextWorkingDirectoryAvailable {
		workingDirectory = contextWorkingDirectory
	}
	if flagValue, flagChanged, flagError := flagutils.StringFlag(command, workingDirectoryFlagNameConstant); flagError == nil && flagChanged {
		workingDirectory = flagValue
	}

	outputFormat, outputFormatError := resolveOutputFormat(command)
	if outputFormatError != nil {
		return outputFormatError
	}

	executor := buildrunner.Resolve(builder.ExecutorFactory, buildrunner.Dependencies{
		Logger:           builder.LoggerProvider(),
		Output:           utils.NewFlushingWriter(command.OutOrStdout()),
		Errors:           utils.NewFlushingWriter(command.ErrOrStderr()),
		WorkingDirectory: workingDirectory,
		DisableSummary:   true,
	})

	outcome, runError := executor.Run(command.Context(), buildConfiguration)
	if runError != nil {
		return runError
	}

	if renderError := renderBuildReport(command, outputFormat, outcome.Report); renderError != nil {
		return renderError
	}

	if !outcome.Report.Succeeded() {
		return ErrBuildFailed
	}
	return nil
}

func renderBuildReport(command *cobra.Command, outputFormat string, buildReport report.BuildReport) error {
	switch outputFormat {
	case outputFormatHumanConstant:
		return report.WriteHumanReport(command.OutOrStdout(), buildReport)
	case outputFormatYAMLConstant:
		encodedReport, encodeError := report.EncodeYAML(buildReport)
		if encodeError != nil {
			return encodeError
		}
		fmt.Fprint(command.OutOrStdout(), encodedReport)
		return nil
	case outputFormatJSONConstant:
		encodedReport, encodeError := report.EncodeJSON(buildReport)
		if encodeError != nil {
			return encodeError
		}
		fmt.Fprintln(command.OutOrStdout(), encodedReport)
		return nil
	default:
		return fmt.Errorf(unsupportedOutputFormatTemplateConstant, outputFormat)
	}
}

// ExpandCommandBuilder assembles the expand command.
type ExpandCommandBuilder struct {
	ConfigurationProvider func() ApplicationConfiguration
}

// Build constructs the expand command.
func (builder *ExpandCommandBuilder) Build() (*cobra.Command, error) {
	expandCommand := &cobra.Command{
		Use:           expandCommandUseNameConstant,
		Short:         expandCommandShortDescriptionConstant,
		Long:          expandCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command)
		},
	}

	expandCommand.Flags().String(outputFlagNameConstant, outputFormatHumanConstant, flagutils.FormatChoiceUsage(
		outputFormatHumanConstant,
		[]string{outputFormatHumanConstant, outputFormatYAMLConstant, outputFormatJSONConstant},
		outputFlagUsageConstant,
	))

	return expandCommand, nil
}

func (builder *ExpandCommandBuilder) run(command *cobra.Command) error {
	configuration := builder.ConfigurationProvider()

	buildModel, modelError := matrix.NewModelFromConfiguration(configuration.Build)
	if modelError != nil {
		return fmt.Errorf(invalidConfigurationTemplateConstant, modelError)
	}

	outputFormat, outputFormatError := resolveOutputFormat(command)
	if outputFormatError != nil {
		return outputFormatError
	}

	jobSpecifications := buildModel.Expand()
	if outputFormat == outputFormatHumanConstant {
		for _, jobSpecification := range jobSpecifications {
			jobLine := jobSpecification.Name
			if jobSpecification.FromInclude {
				jobLine += expandIncludeSuffixConstant
			}
			if jobSpecification.AllowFailure {
				jobLine += expandAllowFailureSuffixConstant
			}
			fmt.Fprintf(command.OutOrStdout(), expandJobLineTemplateConstant, jobLine)
		}
		return nil
	}

	jobRows := make([]expandedJobRow, 0, len(jobSpecifications))
	for _, jobSpecification := range jobSpecifications {
		jobRows = append(jobRows, expandedJobRow{
			Name:         jobSpecification.Name,
			AxisValues:   jobSpecification.AxisValues,
			Environment:  jobSpecification.Environment,
			AllowFailure: jobSpecification.AllowFailure,
			FromInclude:  jobSpecification.FromInclude,
			StageCount:   jobSpecification.StageCount(),
		})
	}
	return renderExpandedJobRows(command, outputFormat, jobRows)
}

// ValidateCommandBuilder assembles the validate command.
type ValidateCommandBuilder struct {
	ConfigurationProvider func() ApplicationConfiguration
}

// Build constructs the validate command.
func (builder *ValidateCommandBuilder) Build() (*cobra.Command, error) {
	validateCommand := &cobra.Command{
		Use:           validateCommandUseNameConstant,
		Short:         validateCommandShortDescriptionConstant,
		Long:          validateCommandLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration := builder.ConfigurationProvider()
			buildModel, modelError := matrix.NewModelFromConfiguration(configuration.Build)
			if modelError != nil {
				return fmt.Errorf(invalidConfigurationTemplateConstant, modelError)
			}
			fmt.Fprintf(
				command.OutOrStdout(),
				validateSuccessTemplateConstant,
				len(buildModel.Axes()),
				len(buildModel.Expand()),
			)
			return nil
		},
	}
	return validateCommand, nil
}

func renderExpandedJobRows(command *cobra.Command, outputFormat string, jobRows []expandedJobRow) error {
	switch outputFormat {
	case outputFormatYAMLConstant:
		encodedRows, encodeError := yaml.Marshal(jobRows)
		if encodeError != nil {
			return encodeError
		}
		fmt.Fprint(command.OutOrStdout(), string(encodedRows))
		return nil
	case outputFormatJSONConstant:
		encodedRows, encodeError := json.MarshalIndent(jobRows, "", "  ")
		if encodeError != nil {
			return encodeError
		}
		fmt.Fprintln(command.OutOrStdout(), string(encodedRows))
		return nil
	default:
		return fmt.Errorf(unsupportedOutputFormatTemplateConstant, outputFormat)
	}
}

func resolveOutputFormat(command *cobra.Command) (string, error) {
	outputValue, _, outputError := flagutils.StringFlag(command, outputFlagNameConstant)
	if outputError != nil {
		return outputFormatHumanConstant, nil
	}

	normalizedFormat := strings.ToLower(strings.TrimSpace(outputValue))
	switch normalizedFormat {
	case "", outputFormatHumanConstant:
		return outputFormatHumanConstant, nil
	case outputFormatYAMLConstant, outputFormatJSONConstant:
		return normalizedFormat, nil
	default:
		return "", fmt.Errorf(unsupportedOutputFormatTemplateConstant, outputValue)
	}
}

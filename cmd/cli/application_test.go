package cli_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/matrixci/cmd/cli"
)

const (
	testConfigurationFileNameConstant          = "config.yaml"
	testConfigurationSearchPathEnvironmentName = "MATRIXCI_CONFIG_SEARCH_PATH"
	testApplicationBinaryNameConstant          = "matrixci"
	testPassingConfigurationConstant           = "common:\n  log_level: error\n  log_format: structured\nbuild:\n  axes:\n    - name: rust\n      values: [\"stable\", \"nightly\"]\n  script:\n    - \"true\"\n  matrix:\n    allow_failures:\n      - axes:\n          rust: nightly\n"
	testFailingConfigurationConstant           = "common:\n  log_level: error\n  log_format: structured\nbuild:\n  axes:\n    - name: rust\n      values: [\"stable\", \"nightly\"]\n  script:\n    - \"exit 3\"\n"
	testFailingWithoutModifiersConfiguration   = "common:\n  log_level: error\n  log_format: structured\nbuild:\n  axes:\n    - name: rust\n      values: [\"nightly\"]\n  script:\n    - \"exit 3\"\n"
	testStableOnlyConfigurationConstant        = "common:\n  log_level: error\n  log_format: structured\nbuild:\n  axes:\n    - name: rust\n      values: [\"stable\"]\n  script:\n    - \"true\"\n"
	testInvalidConfigurationConstant           = "common:\n  log_level: error\n  log_format: structured\nbuild:\n  axes:\n    - name: rust\n      values: []\n  script:\n    - \"true\"\n"
	testRunCommandNameConstant                 = "run"
	testExpandCommandNameConstant              = "expand"
	testValidateCommandNameConstant            = "validate"
	testVersionCommandNameConstant             = "version"
	testStableJobNameConstant                  = "rust=stable"
	testNightlyJobLineConstant                 = "rust=nightly (allow_failure)"
	testSuccessSummaryFragmentConstant         = "Summary: verdict=success"
	testFailureSummaryFragmentConstant         = "Summary: verdict=failure"
	testValidateOutputConstant                 = "configuration valid: 1 axes, 2 jobs\n"
	testStableOnlyValidateOutputConstant       = "configuration valid: 1 axes, 1 jobs\n"
	testAllowedFailureFragmentConstant         = "(allowed)"
	testInvalidConfigurationFragmentConstant   = "invalid configuration"
	testVersionOutputPrefixConstant            = "matrixci version: "
	testLogLevelFlagConstant                   = "--log-level"
	testDebugLogLevelConstant                  = "debug"
	testInitializedLogMessageConstant          = "configuration initialized"
	testLocalInitializationArgumentConstant    = "--init"
	testUserInitializationArgumentConstant     = "--init=user"
	testForceFlagConstant                      = "--force"
	testUserHomeEnvironmentNameConstant        = "HOME"
	testXDGConfigHomeEnvironmentNameConstant   = "XDG_CONFIG_HOME"
	testUserConfigurationDirectoryConstant     = ".matrixci"
	testExistingConfigurationContentConstant   = "common:\n  log_level: error\n"
	testAlreadyExistsFragmentConstant          = "already exists"
	applicationSubtestNameTemplateConstant     = "%d_%s"
)

func changeWorkingDirectory(testInstance *testing.T, targetDirectory string) {
	testInstance.Helper()
	previousWorkingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)
	require.NoError(testInstance, os.Chdir(targetDirectory))
	testInstance.Cleanup(func() { _ = os.Chdir(previousWorkingDirectory) })
}

func writeConfigurationFile(testInstance *testing.T, configurationPath string, configurationContent string) {
	testInstance.Helper()
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(configurationContent), 0o600))
}

func prepareConfigurationDirectory(testInstance *testing.T, configurationContent string) string {
	testInstance.Helper()
	configurationDirectory := testInstance.TempDir()
	writeConfigurationFile(testInstance, filepath.Join(configurationDirectory, testConfigurationFileNameConstant), configurationContent)
	testInstance.Setenv(testConfigurationSearchPathEnvironmentName, configurationDirectory)
	return configurationDirectory
}

func executeApplication(testInstance *testing.T, arguments []string) (string, error) {
	testInstance.Helper()

	originalArguments := os.Args
	os.Args = append([]string{testApplicationBinaryNameConstant}, arguments...)
	testInstance.Cleanup(func() {
		os.Args = originalArguments
	})

	application := cli.NewApplication()
	outputBuffer := &bytes.Buffer{}
	application.RootCommand().SetOut(outputBuffer)
	application.RootCommand().SetErr(outputBuffer)

	executionError := application.Execute()
	return outputBuffer.String(), executionError
}

func TestApplicationRunCommand(testInstance *testing.T) {
	testCases := []struct {
		name                     string
		configurationContent     string
		expectedError            error
		expectedOutputFragments  []string
		forbiddenOutputFragments []string
	}{
		{
			name:                 "passing_matrix_reports_success",
			configurationContent: testPassingConfigurationConstant,
			expectedOutputFragments: []string{
				testSuccessSummaryFragmentConstant,
				testStableJobNameConstant,
			},
			forbiddenOutputFragments: []string{testFailureSummaryFragmentConstant},
		},
		{
			name:                 "failing_matrix_reports_failure",
			configurationContent: testFailingConfigurationConstant,
			expectedError:        cli.ErrBuildFailed,
			expectedOutputFragments: []string{
				testFailureSummaryFragmentConstant,
			},
			forbiddenOutputFragments: []string{testSuccessSummaryFragmentConstant},
		},
		{
			name:                 "nightly_failure_without_modifiers_fails_build",
			configurationContent: testFailingWithoutModifiersConfiguration,
			expectedError:        cli.ErrBuildFailed,
			expectedOutputFragments: []string{
				testFailureSummaryFragmentConstant,
			},
			forbiddenOutputFragments: []string{
				testSuccessSummaryFragmentConstant,
				testAllowedFailureFragmentConstant,
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(subtest *testing.T) {
			prepareConfigurationDirectory(subtest, testCase.configurationContent)

			capturedOutput, executionError := executeApplication(subtest, []string{testRunCommandNameConstant})

			if testCase.expectedError == nil {
				require.NoError(subtest, executionError)
			} else {
				require.ErrorIs(subtest, executionError, testCase.expectedError)
			}
			for _, expectedFragment := range testCase.expectedOutputFragments {
				require.Contains(subtest, capturedOutput, expectedFragment)
			}
			for _, forbiddenFragment := range testCase.forbiddenOutputFragments {
				require.NotContains(subtest, capturedOutput, forbiddenFragment)
			}
		})
	}
}

func TestApplicationExpandCommand(testInstance *testing.T) {
	prepareConfigurationDirectory(testInstance, testPassingConfigurationConstant)

	capturedOutput, executionError := executeApplication(testInstance, []string{testExpandCommandNameConstant})
	require.NoError(testInstance, executionError)

	outputLines := strings.Split(strings.TrimSpace(capturedOutput), "\n")
	require.Equal(testInstance, []string{testStableJobNameConstant, testNightlyJobLineConstant}, outputLines)
}

func TestApplicationExpandCommandJSONOutput(testInstance *testing.T) {
	prepareConfigurationDirectory(testInstance, testPassingConfigurationConstant)

	capturedOutput, executionError := executeApplication(testInstance, []string{testExpandCommandNameConstant, "--output", "json"})
	require.NoError(testInstance, executionError)

	var decodedRows []map[string]any
	require.NoError(testInstance, json.Unmarshal([]byte(capturedOutput), &decodedRows))
	require.Len(testInstance, decodedRows, 2)
	require.Equal(testInstance, testStableJobNameConstant, decodedRows[0]["name"])
	require.Equal(testInstance, true, decodedRows[1]["allow_failure"])
}

func TestApplicationValidateCommand(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		configurationContent string
		expectedOutput       string
		expectedErrorText    string
	}{
		{
			name:                 "valid_configuration",
			configurationContent: testPassingConfigurationConstant,
			expectedOutput:       testValidateOutputConstant,
		},
		{
			name:                 "axes_without_nightly_do_not_inherit_baked_in_rules",
			configurationContent: testStableOnlyConfigurationConstant,
			expectedOutput:       testStableOnlyValidateOutputConstant,
		},
		{
			name:                 "axis_without_values_is_rejected",
			configurationContent: testInvalidConfigurationConstant,
			expectedErrorText:    testInvalidConfigurationFragmentConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(subtest *testing.T) {
			prepareConfigurationDirectory(subtest, testCase.configurationContent)

			capturedOutput, executionError := executeApplication(subtest, []string{testValidateCommandNameConstant})

			if len(testCase.expectedErrorText) > 0 {
				require.Error(subtest, executionError)
				require.Contains(subtest, executionError.Error(), testCase.expectedErrorText)
				return
			}
			require.NoError(subtest, executionError)
			require.Equal(subtest, testCase.expectedOutput, capturedOutput)
		})
	}
}

func TestApplicationVersionCommand(testInstance *testing.T) {
	prepareConfigurationDirectory(testInstance, testPassingConfigurationConstant)

	capturedOutput, executionError := executeApplication(testInstance, []string{testVersionCommandNameConstant})
	require.NoError(testInstance, executionError)
	require.True(testInstance, strings.HasPrefix(capturedOutput, testVersionOutputPrefixConstant))
}

func TestApplicationLogLevelFlagOverride(testInstance *testing.T) {
	prepareConfigurationDirectory(testInstance, testPassingConfigurationConstant)

	capturedStderr := captureStderr(testInstance, func() {
		_, executionError := executeApplication(testInstance, []string{
			testValidateCommandNameConstant,
			testLogLevelFlagConstant,
			testDebugLogLevelConstant,
		})
		require.NoError(testInstance, executionError)
	})

	trimmedStderr := strings.TrimSpace(capturedStderr)
	require.NotEmpty(testInstance, trimmedStderr)

	initializationLine := ""
	for _, stderrLine := range strings.Split(trimmedStderr, "\n") {
		if strings.Contains(stderrLine, testInitializedLogMessageConstant) {
			initializationLine = stderrLine
			break
		}
	}
	require.NotEmpty(testInstance, initializationLine)

	var logEntry map[string]any
	require.NoError(testInstance, json.Unmarshal([]byte(initializationLine), &logEntry))
	require.Equal(testInstance, testDebugLogLevelConstant, logEntry["log_level"])
}

func TestApplicationConfigurationInitializationCreatesConfiguration(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, embeddedConfigurationContent)

	testCases := []struct {
		name      string
		arguments []string
		setup     func(subtest *testing.T) string
	}{
		{
			name:      "local_scope",
			arguments: []string{testLocalInitializationArgumentConstant},
			setup: func(subtest *testing.T) string {
				workingDirectory := subtest.TempDir()
				changeWorkingDirectory(subtest, workingDirectory)
				return filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			},
		},
		{
			name:      "user_scope",
			arguments: []string{testUserInitializationArgumentConstant},
			setup: func(subtest *testing.T) string {
				changeWorkingDirectory(subtest, subtest.TempDir())
				homeDirectory := subtest.TempDir()
				subtest.Setenv(testUserHomeEnvironmentNameConstant, homeDirectory)
				subtest.Setenv(testXDGConfigHomeEnvironmentNameConstant, "")
				return filepath.Join(homeDirectory, testUserConfigurationDirectoryConstant, testConfigurationFileNameConstant)
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(subtest *testing.T) {
			expectedConfigurationPath := testCase.setup(subtest)

			_, executionError := executeApplication(subtest, testCase.arguments)
			require.NoError(subtest, executionError)

			writtenContent, readError := os.ReadFile(expectedConfigurationPath)
			require.NoError(subtest, readError)
			require.Equal(subtest, embeddedConfigurationContent, writtenContent)
		})
	}
}

func TestApplicationConfigurationInitializationForceHandling(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, embeddedConfigurationContent)

	testCases := []struct {
		name        string
		arguments   []string
		expectError bool
	}{
		{
			name:        "existing_file_requires_force",
			arguments:   []string{testLocalInitializationArgumentConstant},
			expectError: true,
		},
		{
			name: "force_overwrites_existing_file",
			arguments: []string{
				testLocalInitializationArgumentConstant,
				testForceFlagConstant,
			},
			expectError: false,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(subtest *testing.T) {
			workingDirectory := subtest.TempDir()
			changeWorkingDirectory(subtest, workingDirectory)

			existingConfigurationPath := filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			writeConfigurationFile(subtest, existingConfigurationPath, testExistingConfigurationContentConstant)

			_, executionError := executeApplication(subtest, testCase.arguments)

			if testCase.expectError {
				require.Error(subtest, executionError)
				require.Contains(subtest, executionError.Error(), testAlreadyExistsFragmentConstant)
				return
			}

			require.NoError(subtest, executionError)
			writtenContent, readError := os.ReadFile(existingConfigurationPath)
			require.NoError(subtest, readError)
			require.Equal(subtest, embeddedConfigurationContent, writtenContent)
		})
	}
}

func captureStderr(testInstance *testing.T, run func()) string {
	testInstance.Helper()

	originalStderr := os.Stderr
	pipeReader, pipeWriter, pipeError := os.Pipe()
	require.NoError(testInstance, pipeError)
	os.Stderr = pipeWriter
	defer func() {
		os.Stderr = originalStderr
	}()

	run()

	require.NoError(testInstance, pipeWriter.Close())
	capturedBytes, readError := io.ReadAll(pipeReader)
	require.NoError(testInstance, readError)
	return string(capturedBytes)
}

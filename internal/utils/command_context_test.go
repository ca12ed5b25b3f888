package utils_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/matrixci/internal/utils"
)

const (
	commandContextSubtestTemplateConstant = "%d_%s"
	configurationFilePathValueConstant    = "/tmp/matrixci/config.yaml"
	logLevelValueConstant                 = "debug"
	workingDirectoryValueConstant         = "/tmp/matrixci/workspace"
)

func TestCommandContextAccessorRoundTrips(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	testCases := []struct {
		name          string
		buildContext  func() context.Context
		verifyContext func(subtest *testing.T, executionContext context.Context)
	}{
		{
			name: "configuration_file_path_round_trip",
			buildContext: func() context.Context {
				return accessor.WithConfigurationFilePath(context.Background(), configurationFilePathValueConstant)
			},
			verifyContext: func(subtest *testing.T, executionContext context.Context) {
				configurationFilePath, configurationFilePathAvailable := accessor.ConfigurationFilePath(executionContext)
				require.True(subtest, configurationFilePathAvailable)
				require.Equal(subtest, configurationFilePathValueConstant, configurationFilePath)
			},
		},
		{
			name: "log_level_round_trip",
			buildContext: func() context.Context {
				return accessor.WithLogLevel(context.Background(), logLevelValueConstant)
			},
			verifyContext: func(subtest *testing.T, executionContext context.Context) {
				logLevel, logLevelAvailable := accessor.LogLevel(executionContext)
				require.True(subtest, logLevelAvailable)
				require.Equal(subtest, logLevelValueConstant, logLevel)
			},
		},
		{
			name: "working_directory_round_trip",
			buildContext: func() context.Context {
				return accessor.WithWorkingDirectory(context.Background(), workingDirectoryValueConstant)
			},
			verifyContext: func(subtest *testing.T, executionContext context.Context) {
				workingDirectory, workingDirectoryAvailable := accessor.WorkingDirectory(executionContext)
				require.True(subtest, workingDirectoryAvailable)
				require.Equal(subtest, workingDirectoryValueConstant, workingDirectory)
			},
		},
		{
			name: "blank_log_level_is_not_stored",
			buildContext: func() context.Context {
				return accessor.WithLogLevel(context.Background(), "   ")
			},
			verifyContext: func(subtest *testing.T, executionContext context.Context) {
				_, logLevelAvailable := accessor.LogLevel(executionContext)
				require.False(subtest, logLevelAvailable)
			},
		},
		{
			name: "nil_parent_context_is_replaced",
			buildContext: func() context.Context {
				return accessor.WithConfigurationFilePath(nil, configurationFilePathValueConstant)
			},
			verifyContext: func(subtest *testing.T, executionContext context.Context) {
				require.NotNil(subtest, executionContext)
				configurationFilePath, configurationFilePathAvailable := accessor.ConfigurationFilePath(executionContext)
				require.True(subtest, configurationFilePathAvailable)
				require.Equal(subtest, configurationFilePathValueConstant, configurationFilePath)
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(commandContextSubtestTemplateConstant, testCaseIndex, testCase.name), func(subtest *testing.T) {
			executionContext := testCase.buildContext()
			testCase.verifyContext(subtest, executionContext)
		})
	}
}

func TestCommandContextAccessorMissingValues(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	_, configurationFilePathAvailable := accessor.ConfigurationFilePath(context.Background())
	require.False(testInstance, configurationFilePathAvailable)

	_, logLevelAvailable := accessor.LogLevel(nil)
	require.False(testInstance, logLevelAvailable)

	_, workingDirectoryAvailable := accessor.WorkingDirectory(context.Background())
	require.False(testInstance, workingDirectoryAvailable)
}

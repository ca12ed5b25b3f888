package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
)

const (
	shellBinaryNameConstant       = "sh"
	shellCommandFlagConstant      = "-c"
	environmentEntrySeparatorRune = '='
)

// OSCommandRunner executes shell invocations as real operating-system
// processes.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs an OS-backed command runner.
func NewOSCommandRunner() OSCommandRunner {
	return OSCommandRunner{}
}

// Run spawns `sh -c <command>` with the invocation's environment merged over
// the inherited process environment. Non-zero exits are returned in the
// ExecutionResult; only spawn failures surface as errors.
func (commandRunner OSCommandRunner) Run(executionContext context.Context, invocation ShellInvocation) (ExecutionResult, error) {
	shellProcess := exec.CommandContext(executionContext, shellBinaryNameConstant, shellCommandFlagConstant, invocation.Command)
	shellProcess.Dir = invocation.WorkingDirectory
	shellProcess.Env = mergeProcessEnvironment(invocation.EnvironmentVariables)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	shellProcess.Stdout = &standardOutputBuffer
	shellProcess.Stderr = &standardErrorBuffer

	runError := shellProcess.Run()
	executionResult := ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
	}

	if runError != nil {
		var exitError *exec.ExitError
		if errors.As(runError, &exitError) {
			executionResult.ExitCode = exitError.ExitCode()
			return executionResult, nil
		}
		return ExecutionResult{}, runError
	}

	return executionResult, nil
}

func mergeProcessEnvironment(additionalVariables map[string]string) []string {
	mergedEnvironment := os.Environ()
	if len(additionalVariables) == 0 {
		return mergedEnvironment
	}

	variableNames := make([]string, 0, len(additionalVariables))
	for variableName := range additionalVariables {
		variableNames = append(variableNames, variableName)
	}
	sort.Strings(variableNames)

	for _, variableName := range variableNames {
		entry := variableName + string(environmentEntrySeparatorRune) + additionalVariables[variableName]
		mergedEnvironment = append(mergedEnvironment, entry)
	}
	return mergedEnvironment
}

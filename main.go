package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tyemirov/matrixci/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the matrixci command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		if !errors.Is(executionError, cli.ErrBuildFailed) {
			fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		}
		os.Exit(1)
	}
}

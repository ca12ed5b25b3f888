package cli

import (
	_ "embed"

	"github.com/tyemirov/matrixci/internal/matrix"
)

//go:embed config.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the baked-in default configuration and
// its format. The content seeds fresh installations via --init and backs every
// run when no configuration file is present.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return embeddedDefaultConfiguration, configurationTypeConstant
}

// ApplicationConfiguration describes the persisted configuration for the CLI
// entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Build  matrix.Configuration           `mapstructure:"build"`
}

// ApplicationCommonConfiguration stores logging and execution defaults shared
// across commands.
type ApplicationCommonConfiguration struct {
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	WorkingDirectory string `mapstructure:"working_directory"`
}

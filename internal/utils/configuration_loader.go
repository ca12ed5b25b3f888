package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant          = "."
	environmentKeyReplacementConstant        = "_"
	readEmbeddedConfigurationErrorConstant   = "read embedded configuration: %w"
	readConfigurationFileErrorConstant       = "read configuration file: %w"
	decodeConfigurationErrorTemplateConstant = "decode configuration: %w"
)

// LoadedConfiguration reports where configuration values were sourced from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader resolves configuration from explicit defaults, a
// configuration file, and environment variables. Registered embedded content
// stands in for the configuration file only when no file is found, so file
// content never mixes with embedded content. Environment variables win.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// NewConfigurationLoader constructs a loader searching the provided paths in
// order for a configuration file.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration registers baked-in configuration content used in
// place of a configuration file when none is found.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(content []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte(nil), content...)
	loader.embeddedConfigurationType = configurationType
}

// LoadConfiguration resolves configuration into target. An explicit file path
// bypasses the search paths; an empty path searches them in order and treats
// a missing file as acceptable.
func (loader *ConfigurationLoader) LoadConfiguration(explicitFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorConstant, environmentKeyReplacementConstant))
	viperInstance.AutomaticEnv()

	configFileUsed := ""
	if len(explicitFilePath) > 0 {
		viperInstance.SetConfigFile(explicitFilePath)
		if readError := viperInstance.ReadInConfig(); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(readConfigurationFileErrorConstant, readError)
		}
		configFileUsed = viperInstance.ConfigFileUsed()
	} else {
		for _, searchPath := range loader.searchPaths {
			viperInstance.AddConfigPath(searchPath)
		}
		readError := viperInstance.ReadInConfig()
		var configFileNotFoundError viper.ConfigFileNotFoundError
		switch {
		case readError == nil:
			configFileUsed = viperInstance.ConfigFileUsed()
		case errors.As(readError, &configFileNotFoundError):
		default:
			return LoadedConfiguration{}, fmt.Errorf(readConfigurationFileErrorConstant, readError)
		}
	}

	if len(configFileUsed) == 0 && len(loader.embeddedConfiguration) > 0 {
		viperInstance.SetConfigType(loader.embeddedConfigurationType)
		if readError := viperInstance.ReadConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(readEmbeddedConfigurationErrorConstant, readError)
		}
	}

	weaklyTypedDecoding := func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.WeaklyTypedInput = true
	}
	if decodeError := viperInstance.Unmarshal(target, weaklyTypedDecoding); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(decodeConfigurationErrorTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: configFileUsed}, nil
}

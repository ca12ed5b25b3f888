package matrix

// Configuration mirrors the persisted build section of the application
// configuration file. Decoding happens through viper/mapstructure in the CLI
// layer; translation into a validated Model happens here.
type Configuration struct {
	FailFast          *bool                        `mapstructure:"fail_fast"`
	MaxWorkers        int                          `mapstructure:"max_workers"`
	Axes              []AxisConfiguration          `mapstructure:"axes"`
	GlobalEnvironment map[string]string            `mapstructure:"env"`
	BeforeScript      []string                     `mapstructure:"before_script"`
	Script            []string                     `mapstructure:"script"`
	Matrix            MatrixModifiersConfiguration `mapstructure:"matrix"`
}

// AxisConfiguration declares one axis and its ordered value domain.
type AxisConfiguration struct {
	Name   string   `mapstructure:"name"`
	Values []string `mapstructure:"values"`
}

// MatrixModifiersConfiguration groups the matrix-modification rule lists.
type MatrixModifiersConfiguration struct {
	Include       []IncludeConfiguration      `mapstructure:"include"`
	Exclude       []ExcludeConfiguration      `mapstructure:"exclude"`
	AllowFailures []AllowFailureConfiguration `mapstructure:"allow_failures"`
}

// IncludeConfiguration describes an appended matrix row. A nil Script or
// BeforeScript inherits the global pipeline; a non-nil value replaces it
// verbatim.
type IncludeConfiguration struct {
	AxisValues   map[string]string `mapstructure:"axes"`
	Environment  map[string]string `mapstructure:"env"`
	Script       []string          `mapstructure:"script"`
	BeforeScript []string          `mapstructure:"before_script"`
	AllowFailure bool              `mapstructure:"allow_failure"`
}

// ExcludeConfiguration describes a base-entry removal selector.
type ExcludeConfiguration struct {
	AxisValues map[string]string `mapstructure:"axes"`
}

// AllowFailureConfiguration describes an allow-failure selector predicate.
type AllowFailureConfiguration struct {
	AxisValues  map[string]string `mapstructure:"axes"`
	Environment map[string]string `mapstructure:"env"`
}

// FailFastEnabled resolves the fail-fast policy, defaulting to enabled when
// the configuration leaves it unset.
func (configuration Configuration) FailFastEnabled() bool {
	if configuration.FailFast == nil {
		return true
	}
	return *configuration.FailFast
}

// NewModelFromConfiguration translates decoded configuration into a validated
// model. Validation failures unwrap to ErrInvalidConfiguration.
func NewModelFromConfiguration(configuration Configuration) (*Model, error) {
	axes := make([]Axis, 0, len(configuration.Axes))
	for _, axisConfiguration := range configuration.Axes {
		axes = append(axes, Axis{Name: axisConfiguration.Name, Values: axisConfiguration.Values})
	}

	includeRules := make([]IncludeRule, 0, len(configuration.Matrix.Include))
	for _, includeConfiguration := range configuration.Matrix.Include {
		includeRule := IncludeRule{
			AxisValues:   includeConfiguration.AxisValues,
			Environment:  includeConfiguration.Environment,
			Script:       InheritedPipeline(),
			BeforeScript: InheritedPipeline(),
			AllowFailure: includeConfiguration.AllowFailure,
		}
		if includeConfiguration.Script != nil {
			includeRule.Script = OverriddenPipeline(includeConfiguration.Script)
		}
		if includeConfiguration.BeforeScript != nil {
			includeRule.BeforeScript = OverriddenPipeline(includeConfiguration.BeforeScript)
		}
		includeRules = append(includeRules, includeRule)
	}

	excludeRules := make([]ExcludeRule, 0, len(configuration.Matrix.Exclude))
	for _, excludeConfiguration := range configuration.Matrix.Exclude {
		excludeRules = append(excludeRules, ExcludeRule{AxisValues: excludeConfiguration.AxisValues})
	}

	allowFailureRules := make([]AllowFailureRule, 0, len(configuration.Matrix.AllowFailures))
	for _, allowFailureConfiguration := range configuration.Matrix.AllowFailures {
		allowFailureRules = append(allowFailureRules, AllowFailureRule{
			AxisValues:  allowFailureConfiguration.AxisValues,
			Environment: allowFailureConfiguration.Environment,
		})
	}

	return NewModel(Definition{
		Axes:              axes,
		GlobalEnvironment: configuration.GlobalEnvironment,
		BeforeScript:      configuration.BeforeScript,
		Script:            configuration.Script,
		IncludeRules:      includeRules,
		ExcludeRules:      excludeRules,
		AllowFailureRules: allowFailureRules,
		FailFast:          configuration.FailFastEnabled(),
	})
}

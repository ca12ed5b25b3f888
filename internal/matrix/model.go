// Package matrix models a declarative build matrix (axes, include and
// exclude rules, allow-failure selectors) and expands it into concrete job
// specifications.
package matrix

import "strings"

const (
	scriptFieldNameConstant       = "script"
	beforeScriptFieldNameConstant = "before_script"
)

// Axis is a named dimension of build variation with an ordered value domain.
type Axis struct {
	Name   string
	Values []string
}

// IncludeRule appends one job row to the expanded matrix. Axis assignments may
// be partial or empty; the row is never matched against the base cross-product.
type IncludeRule struct {
	AxisValues   map[string]string
	Environment  map[string]string
	Script       PipelineOverride
	BeforeScript PipelineOverride
	AllowFailure bool
}

// ExcludeRule removes base entries whose axis values match every specified
// assignment. Omitted axes act as wildcards.
type ExcludeRule struct {
	AxisValues map[string]string
}

// AllowFailureRule marks matching jobs as allowed to fail. Axis and
// environment selectors use equality with wildcard-on-omitted-field semantics.
type AllowFailureRule struct {
	AxisValues  map[string]string
	Environment map[string]string
}

// Definition carries the raw inputs for model construction.
type Definition struct {
	Axes              []Axis
	GlobalEnvironment map[string]string
	BeforeScript      []string
	Script            []string
	IncludeRules      []IncludeRule
	ExcludeRules      []ExcludeRule
	AllowFailureRules []AllowFailureRule
	FailFast          bool
}

// Model is a validated build matrix. Immutable after construction.
type Model struct {
	axes              []Axis
	axisDomains       map[string]map[string]struct{}
	globalEnvironment map[string]string
	beforeScript      []string
	script            []string
	includeRules      []IncludeRule
	excludeRules      []ExcludeRule
	allowFailureRules []AllowFailureRule
	failFast          bool
}

// NewModel validates the provided definition and returns an immutable model.
// Every validation failure unwraps to ErrInvalidConfiguration.
func NewModel(definition Definition) (*Model, error) {
	axisDomains := make(map[string]map[string]struct{}, len(definition.Axes))
	for _, axis := range definition.Axes {
		trimmedAxisName := strings.TrimSpace(axis.Name)
		if len(trimmedAxisName) == 0 {
			return nil, EmptyAxisError{}
		}
		if _, exists := axisDomains[trimmedAxisName]; exists {
			return nil, DuplicateAxisError{AxisName: trimmedAxisName}
		}
		if len(axis.Values) == 0 {
			return nil, EmptyAxisError{AxisName: trimmedAxisName}
		}
		domain := make(map[string]struct{}, len(axis.Values))
		for _, axisValue := range axis.Values {
			domain[axisValue] = struct{}{}
		}
		axisDomains[trimmedAxisName] = domain
	}

	if len(definition.Script) == 0 {
		return nil, EmptyScriptError{}
	}

	for includeIndex, includeRule := range definition.IncludeRules {
		reference := RuleReference{Kind: RuleKindInclude, Index: includeIndex}
		for axisName := range includeRule.AxisValues {
			if _, declared := axisDomains[axisName]; !declared {
				return nil, UnknownAxisError{Rule: reference, AxisName: axisName}
			}
		}
		if includeRule.Script.IsOverridden() && len(includeRule.Script.Resolve(nil)) == 0 {
			return nil, EmptyScriptOverrideError{Rule: reference, FieldName: scriptFieldNameConstant}
		}
		if includeRule.BeforeScript.IsOverridden() && len(includeRule.BeforeScript.Resolve(nil)) == 0 {
			return nil, EmptyScriptOverrideError{Rule: reference, FieldName: beforeScriptFieldNameConstant}
		}
	}

	for excludeIndex, excludeRule := range definition.ExcludeRules {
		reference := RuleReference{Kind: RuleKindExclude, Index: excludeIndex}
		if len(excludeRule.AxisValues) == 0 {
			return nil, EmptySelectorError{Rule: reference}
		}
		if validationError := validateSelectorDomain(reference, excludeRule.AxisValues, axisDomains); validationError != nil {
			return nil, validationError
		}
	}

	for allowFailureIndex, allowFailureRule := range definition.AllowFailureRules {
		reference := RuleReference{Kind: RuleKindAllowFailure, Index: allowFailureIndex}
		if len(allowFailureRule.AxisValues) == 0 && len(allowFailureRule.Environment) == 0 {
			return nil, EmptySelectorError{Rule: reference}
		}
		if validationError := validateSelectorDomain(reference, allowFailureRule.AxisValues, axisDomains); validationError != nil {
			return nil, validationError
		}
	}

	return &Model{
		axes:              cloneAxes(definition.Axes),
		axisDomains:       axisDomains,
		globalEnvironment: cloneStringMap(definition.GlobalEnvironment),
		beforeScript:      cloneStringSlice(definition.BeforeScript),
		script:            cloneStringSlice(definition.Script),
		includeRules:      cloneIncludeRules(definition.IncludeRules),
		excludeRules:      cloneExcludeRules(definition.ExcludeRules),
		allowFailureRules: cloneAllowFailureRules(definition.AllowFailureRules),
		failFast:          definition.FailFast,
	}, nil
}

func validateSelectorDomain(reference RuleReference, axisValues map[string]string, axisDomains map[string]map[string]struct{}) error {
	for axisName, axisValue := range axisValues {
		domain, declared := axisDomains[axisName]
		if !declared {
			return UnknownAxisError{Rule: reference, AxisName: axisName}
		}
		if _, inDomain := domain[axisValue]; !inDomain {
			return UnknownAxisValueError{Rule: reference, AxisName: axisName, AxisValue: axisValue}
		}
	}
	return nil
}

// Axes returns the declared axes in declaration order.
func (model *Model) Axes() []Axis {
	return cloneAxes(model.axes)
}

// FailFast reports whether a required-job failure cancels outstanding work.
func (model *Model) FailFast() bool {
	return model.failFast
}

func cloneAxes(axes []Axis) []Axis {
	clonedAxes := make([]Axis, len(axes))
	for axisIndex, axis := range axes {
		clonedAxes[axisIndex] = Axis{Name: axis.Name, Values: cloneStringSlice(axis.Values)}
	}
	return clonedAxes
}

func cloneIncludeRules(rules []IncludeRule) []IncludeRule {
	clonedRules := make([]IncludeRule, len(rules))
	for ruleIndex, rule := range rules {
		clonedRules[ruleIndex] = IncludeRule{
			AxisValues:   cloneStringMap(rule.AxisValues),
			Environment:  cloneStringMap(rule.Environment),
			Script:       rule.Script,
			BeforeScript: rule.BeforeScript,
			AllowFailure: rule.AllowFailure,
		}
	}
	return clonedRules
}

func cloneExcludeRules(rules []ExcludeRule) []ExcludeRule {
	clonedRules := make([]ExcludeRule, len(rules))
	for ruleIndex, rule := range rules {
		clonedRules[ruleIndex] = ExcludeRule{AxisValues: cloneStringMap(rule.AxisValues)}
	}
	return clonedRules
}

func cloneAllowFailureRules(rules []AllowFailureRule) []AllowFailureRule {
	clonedRules := make([]AllowFailureRule, len(rules))
	for ruleIndex, rule := range rules {
		clonedRules[ruleIndex] = AllowFailureRule{
			AxisValues:  cloneStringMap(rule.AxisValues),
			Environment: cloneStringMap(rule.Environment),
		}
	}
	return clonedRules
}

func cloneStringSlice(values []string) []string {
	cloned := make([]string, len(values))
	copy(cloned, values)
	return cloned
}

func cloneStringMap(values map[string]string) map[string]string {
	cloned := make(map[string]string, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

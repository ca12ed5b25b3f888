package matrix

import (
	"errors"
	"fmt"
)

const (
	invalidConfigurationMessageConstant      = "invalid build matrix configuration"
	unknownAxisErrorTemplateConstant         = "%s references undeclared axis %q"
	unknownAxisValueErrorTemplateConstant    = "%s references value %q outside the domain of axis %q"
	emptyAxisValuesErrorTemplateConstant     = "axis %q declares no values"
	duplicateAxisErrorTemplateConstant       = "axis %q is declared more than once"
	emptyAxisNameErrorMessageConstant        = "axis with empty name declared"
	emptyScriptErrorMessageConstant          = "default script pipeline is empty"
	emptyScriptOverrideErrorTemplateConstant = "%s overrides %s with an empty stage list"
	emptySelectorErrorTemplateConstant       = "%s specifies no axis values or environment variables"
)

// ErrInvalidConfiguration is the root of every configuration validation failure.
// Callers can match the whole taxonomy with errors.Is.
var ErrInvalidConfiguration = errors.New(invalidConfigurationMessageConstant)

// RuleReference pinpoints the rule that failed validation.
type RuleReference struct {
	Kind  RuleKind
	Index int
}

// RuleKind names the matrix-modifier list a rule belongs to.
type RuleKind string

// Rule kinds reported in configuration errors.
const (
	RuleKindInclude      RuleKind = "include"
	RuleKindExclude      RuleKind = "exclude"
	RuleKindAllowFailure RuleKind = "allow_failure"
)

// String renders the reference for error messages.
func (reference RuleReference) String() string {
	return fmt.Sprintf("%s rule #%d", reference.Kind, reference.Index+1)
}

// UnknownAxisError reports a rule referencing an axis that was never declared.
type UnknownAxisError struct {
	Rule     RuleReference
	AxisName string
}

// Error implements the error interface.
func (errorDetails UnknownAxisError) Error() string {
	return fmt.Sprintf(unknownAxisErrorTemplateConstant, errorDetails.Rule, errorDetails.AxisName)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails UnknownAxisError) Unwrap() error {
	return ErrInvalidConfiguration
}

// UnknownAxisValueError reports a selector value outside the declared axis domain.
type UnknownAxisValueError struct {
	Rule      RuleReference
	AxisName  string
	AxisValue string
}

// Error implements the error interface.
func (errorDetails UnknownAxisValueError) Error() string {
	return fmt.Sprintf(unknownAxisValueErrorTemplateConstant, errorDetails.Rule, errorDetails.AxisValue, errorDetails.AxisName)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails UnknownAxisValueError) Unwrap() error {
	return ErrInvalidConfiguration
}

// EmptyAxisError reports an axis declared without values.
type EmptyAxisError struct {
	AxisName string
}

// Error implements the error interface.
func (errorDetails EmptyAxisError) Error() string {
	if len(errorDetails.AxisName) == 0 {
		return emptyAxisNameErrorMessageConstant
	}
	return fmt.Sprintf(emptyAxisValuesErrorTemplateConstant, errorDetails.AxisName)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails EmptyAxisError) Unwrap() error {
	return ErrInvalidConfiguration
}

// DuplicateAxisError reports the same axis name declared twice.
type DuplicateAxisError struct {
	AxisName string
}

// Error implements the error interface.
func (errorDetails DuplicateAxisError) Error() string {
	return fmt.Sprintf(duplicateAxisErrorTemplateConstant, errorDetails.AxisName)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails DuplicateAxisError) Unwrap() error {
	return ErrInvalidConfiguration
}

// EmptyScriptError reports a configuration without any default script stage.
type EmptyScriptError struct{}

// Error implements the error interface.
func (errorDetails EmptyScriptError) Error() string {
	return emptyScriptErrorMessageConstant
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails EmptyScriptError) Unwrap() error {
	return ErrInvalidConfiguration
}

// EmptyScriptOverrideError reports an include row replacing a pipeline with zero stages.
type EmptyScriptOverrideError struct {
	Rule      RuleReference
	FieldName string
}

// Error implements the error interface.
func (errorDetails EmptyScriptOverrideError) Error() string {
	return fmt.Sprintf(emptyScriptOverrideErrorTemplateConstant, errorDetails.Rule, errorDetails.FieldName)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails EmptyScriptOverrideError) Unwrap() error {
	return ErrInvalidConfiguration
}

// EmptySelectorError reports a selector rule that matches nothing by construction.
type EmptySelectorError struct {
	Rule RuleReference
}

// Error implements the error interface.
func (errorDetails EmptySelectorError) Error() string {
	return fmt.Sprintf(emptySelectorErrorTemplateConstant, errorDetails.Rule)
}

// Unwrap ties the error into the configuration taxonomy.
func (errorDetails EmptySelectorError) Unwrap() error {
	return ErrInvalidConfiguration
}

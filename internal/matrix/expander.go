package matrix

import (
	"fmt"
	"sort"
	"strings"
)

const (
	defaultJobNameConstant        = "default"
	axisAssignmentSeparator       = ","
	axisAssignmentTemplate        = "%s=%s"
	includeNameCollisionTemplate  = "%s #include-%d"
	environmentAssignmentTemplate = "%s=%s"
)

// JobSpec is one fully resolved row of the expanded matrix. Stage lists are
// ordered and, by model invariant, the script list is never empty.
type JobSpec struct {
	Name         string
	AxisValues   map[string]string
	Environment  map[string]string
	BeforeScript []string
	Script       []string
	AllowFailure bool
	FromInclude  bool
}

// StageCount returns the total number of stages the job will execute.
func (specification JobSpec) StageCount() int {
	return len(specification.BeforeScript) + len(specification.Script)
}

// Expand computes the ordered job list: the axis cross-product (first axis
// varies slowest) minus excluded entries, followed by one job per include
// rule. Expansion is pure; identical models produce identical output.
func (model *Model) Expand() []JobSpec {
	baseEntries := model.enumerateBaseEntries()

	jobSpecifications := make([]JobSpec, 0, len(baseEntries)+len(model.includeRules))
	usedNames := make(map[string]struct{}, len(baseEntries)+len(model.includeRules))

	for _, axisValues := range baseEntries {
		if model.matchesAnyExclude(axisValues) {
			continue
		}
		specification := JobSpec{
			Name:         model.deriveJobName(axisValues, nil),
			AxisValues:   axisValues,
			Environment:  cloneStringMap(model.globalEnvironment),
			BeforeScript: cloneStringSlice(model.beforeScript),
			Script:       cloneStringSlice(model.script),
		}
		specification.AllowFailure = model.matchesAnyAllowFailure(specification)
		usedNames[specification.Name] = struct{}{}
		jobSpecifications = append(jobSpecifications, specification)
	}

	for includeIndex, includeRule := range model.includeRules {
		specification := JobSpec{
			AxisValues:   cloneStringMap(includeRule.AxisValues),
			Environment:  mergeEnvironments(model.globalEnvironment, includeRule.Environment),
			BeforeScript: includeRule.BeforeScript.Resolve(model.beforeScript),
			Script:       includeRule.Script.Resolve(model.script),
			FromInclude:  true,
		}
		specification.Name = model.deriveJobName(specification.AxisValues, includeRule.Environment)
		if _, collision := usedNames[specification.Name]; collision {
			specification.Name = fmt.Sprintf(includeNameCollisionTemplate, specification.Name, includeIndex+1)
		}
		specification.AllowFailure = includeRule.AllowFailure || model.matchesAnyAllowFailure(specification)
		usedNames[specification.Name] = struct{}{}
		jobSpecifications = append(jobSpecifications, specification)
	}

	return jobSpecifications
}

// enumerateBaseEntries walks the cross-product in declared axis order with the
// first axis varying slowest.
func (model *Model) enumerateBaseEntries() []map[string]string {
	if len(model.axes) == 0 {
		return nil
	}

	entryCount := 1
	for _, axis := range model.axes {
		entryCount *= len(axis.Values)
	}

	entries := make([]map[string]string, 0, entryCount)
	valueIndexes := make([]int, len(model.axes))

	for {
		entry := make(map[string]string, len(model.axes))
		for axisIndex, axis := range model.axes {
			entry[axis.Name] = axis.Values[valueIndexes[axisIndex]]
		}
		entries = append(entries, entry)

		incrementPosition := len(model.axes) - 1
		for incrementPosition >= 0 {
			valueIndexes[incrementPosition]++
			if valueIndexes[incrementPosition] < len(model.axes[incrementPosition].Values) {
				break
			}
			valueIndexes[incrementPosition] = 0
			incrementPosition--
		}
		if incrementPosition < 0 {
			break
		}
	}

	return entries
}

func (model *Model) matchesAnyExclude(axisValues map[string]string) bool {
	for _, excludeRule := range model.excludeRules {
		if selectorMatchesValues(excludeRule.AxisValues, axisValues) {
			return true
		}
	}
	return false
}

func (model *Model) matchesAnyAllowFailure(specification JobSpec) bool {
	for _, allowFailureRule := range model.allowFailureRules {
		if !selectorMatchesValues(allowFailureRule.AxisValues, specification.AxisValues) {
			continue
		}
		if !selectorMatchesValues(allowFailureRule.Environment, specification.Environment) {
			continue
		}
		return true
	}
	return false
}

// selectorMatchesValues applies wildcard-on-omitted-field equality: every
// entry the selector specifies must be present and equal in the candidate.
func selectorMatchesValues(selector map[string]string, candidate map[string]string) bool {
	for selectorKey, selectorValue := range selector {
		candidateValue, present := candidate[selectorKey]
		if !present || candidateValue != selectorValue {
			return false
		}
	}
	return true
}

func (model *Model) deriveJobName(axisValues map[string]string, environment map[string]string) string {
	nameParts := make([]string, 0, len(axisValues)+len(environment))
	for _, axis := range model.axes {
		axisValue, present := axisValues[axis.Name]
		if !present {
			continue
		}
		nameParts = append(nameParts, fmt.Sprintf(axisAssignmentTemplate, axis.Name, axisValue))
	}

	if len(nameParts) == 0 && len(environment) > 0 {
		environmentKeys := make([]string, 0, len(environment))
		for environmentKey := range environment {
			environmentKeys = append(environmentKeys, environmentKey)
		}
		sort.Strings(environmentKeys)
		for _, environmentKey := range environmentKeys {
			nameParts = append(nameParts, fmt.Sprintf(environmentAssignmentTemplate, environmentKey, environment[environmentKey]))
		}
	}

	if len(nameParts) == 0 {
		return defaultJobNameConstant
	}
	return strings.Join(nameParts, axisAssignmentSeparator)
}

func mergeEnvironments(globalEnvironment map[string]string, rowEnvironment map[string]string) map[string]string {
	merged := make(map[string]string, len(globalEnvironment)+len(rowEnvironment))
	for key, value := range globalEnvironment {
		merged[key] = value
	}
	for key, value := range rowEnvironment {
		merged[key] = value
	}
	return merged
}

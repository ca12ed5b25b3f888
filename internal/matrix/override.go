package matrix

// PipelineOverride captures the per-field override state of a script pipeline:
// either inherited from the global default or replaced verbatim by an include
// row. Overrides never merge with the default.
type PipelineOverride struct {
	overridden bool
	stages     []string
}

// InheritedPipeline returns an override that defers to the global default.
func InheritedPipeline() PipelineOverride {
	return PipelineOverride{}
}

// OverriddenPipeline returns an override that replaces the default with the
// provided stages.
func OverriddenPipeline(stages []string) PipelineOverride {
	copiedStages := make([]string, len(stages))
	copy(copiedStages, stages)
	return PipelineOverride{overridden: true, stages: copiedStages}
}

// IsOverridden reports whether the override replaces the default pipeline.
func (override PipelineOverride) IsOverridden() bool {
	return override.overridden
}

// Resolve returns the effective stage list given the global default.
func (override PipelineOverride) Resolve(defaultStages []string) []string {
	source := defaultStages
	if override.overridden {
		source = override.stages
	}
	resolvedStages := make([]string, len(source))
	copy(resolvedStages, source)
	return resolvedStages
}

package config

import (
	"fmt"

	"dario.cat/mergo"
)

// mergeOverride merges a YAML-sourced override onto base in place. Only
// fields actually set in override (non-zero, non-nil) take precedence; base
// keeps its built-in default otherwise. This mirrors the teacher's
// defaults-then-merge loading shape, swapping its hand-rolled per-registry
// merge functions for mergo since this config has no registries to
// cross-validate, just scalar and struct-pointer overrides.
func mergeOverride(base, override *Config) error {
	if err := mergo.Merge(base, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge configuration override: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML override file Initialize reads from
// configDir. Missing is not an error: a fresh deployment runs on built-in
// defaults alone.
const configFileName = "config.yaml"

// Initialize loads configuration from configDir, merging YAML overrides
// (with environment-variable expansion) onto built-in defaults, then
// validates the result. It mirrors the teacher's loader sequence: read
// defaults, read override file, expand env vars, merge, validate.
func Initialize(configDir string) (*Config, error) {
	cfg := Default()
	cfg.configDir = configDir

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := ExpandEnv(data)

		var override Config
		if yerr := yaml.Unmarshal(expanded, &override); yerr != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, yerr))
		}
		if merr := mergeOverride(cfg, &override); merr != nil {
			return nil, NewLoadError(path, merr)
		}
	case os.IsNotExist(err):
		// no override file: built-in defaults stand.
	default:
		return nil, NewLoadError(path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrentAnalyses <= 0 {
		return NewValidationError("queue", "max_concurrent_analyses", "", ErrInvalidValue)
	}
	if c.Queue.WorkerCount <= 0 {
		return NewValidationError("queue", "worker_count", "", ErrInvalidValue)
	}
	if c.MatchConfidenceThreshold < 0 || c.MatchConfidenceThreshold > 1 {
		return NewValidationError("root", "match_confidence_threshold", "", ErrInvalidValue)
	}
	for name, site := range map[string]LLMCallSiteConfig{
		"page_audit":    c.LLM.PageAudit,
		"quick_diff":    c.LLM.QuickDiff,
		"post_analysis": c.LLM.PostAnalysis,
		"checkpoint":    c.LLM.Checkpoint,
		"strategy":      c.LLM.Strategy,
	} {
		if site.MaxAttempts <= 0 {
			return NewValidationError("llm_call_site", name, "max_attempts", ErrInvalidValue)
		}
	}
	return nil
}

package config

import "time"

// LLMCallSiteConfig is the connection configuration for one typed LLM call
// site (spec §4.6).
type LLMCallSiteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LLMConfig groups the five call sites the engine drives.
type LLMConfig struct {
	PageAudit    LLMCallSiteConfig `yaml:"page_audit"`
	QuickDiff    LLMCallSiteConfig `yaml:"quick_diff"`
	PostAnalysis LLMCallSiteConfig `yaml:"post_analysis"`
	Checkpoint   LLMCallSiteConfig `yaml:"checkpoint"`
	Strategy     LLMCallSiteConfig `yaml:"strategy"`
}

// DefaultLLMConfig returns conservative defaults for every call site.
// BaseURL/APIKey are left empty here and are supplied via environment-expanded
// YAML; Validate does not check them, so empty values are accepted.
func DefaultLLMConfig() *LLMConfig {
	callSite := LLMCallSiteConfig{Timeout: 30 * time.Second, MaxAttempts: 3}
	return &LLMConfig{
		PageAudit:    callSite,
		QuickDiff:    callSite,
		PostAnalysis: callSite,
		Checkpoint:   callSite,
		Strategy:     callSite,
	}
}

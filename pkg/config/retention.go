package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// FailedAnalysisRetentionDays is how many days to keep failed analyses
	// before they are eligible for deletion.
	FailedAnalysisRetentionDays int `yaml:"failed_analysis_retention_days"`

	// CleanupInterval is how often the retention loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		FailedAnalysisRetentionDays: 90,
		CleanupInterval:             12 * time.Hour,
	}
}

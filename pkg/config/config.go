// Package config loads and validates the engine's static configuration:
// queue/worker tuning, retention policy, the five LLM call sites, analytics
// provider defaults, the screenshot-service and notification clients, and
// the cron schedule — merged from YAML over built-in defaults exactly as
// the teacher's configuration layer does.
package config

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Queue      *QueueConfig
	Retention  *RetentionConfig
	LLM        *LLMConfig
	Analytics  *AnalyticsConfig
	Screenshot *ScreenshotConfig
	Notify     *NotifyConfig
	Scheduler  *SchedulerConfig
	Checkpoint *CheckpointConfig

	// MatchConfidenceThreshold is the minimum match_confidence an
	// LLM-reported fingerprint match must carry to be trusted (spec §9
	// Open Question: the source never defines a threshold; this resolves
	// it as an explicit, documented knob rather than a silent constant).
	MatchConfidenceThreshold float64 `yaml:"match_confidence_threshold"`
}

// Initialize is defined in loader.go

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ConfigStats contains statistics about loaded configuration, logged once
// at startup.
type ConfigStats struct {
	WorkerCount              int
	MaxConcurrentAnalyses    int
	MatchConfidenceThreshold float64
	DailyScanCron            string
	WeeklyScanCron           string
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		WorkerCount:              c.Queue.WorkerCount,
		MaxConcurrentAnalyses:    c.Queue.MaxConcurrentAnalyses,
		MatchConfidenceThreshold: c.MatchConfidenceThreshold,
		DailyScanCron:            c.Scheduler.DailyScanCron,
		WeeklyScanCron:           c.Scheduler.WeeklyScanCron,
	}
}

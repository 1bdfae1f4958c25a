package config

// Default assembles a Config populated entirely from built-in defaults.
// Initialize starts from this value and merges YAML overrides on top via
// mergo, the same "defaults-then-merge" shape the teacher's loader uses.
func Default() *Config {
	return &Config{
		Queue:                    DefaultQueueConfig(),
		Retention:                DefaultRetentionConfig(),
		LLM:                      DefaultLLMConfig(),
		Analytics:                DefaultAnalyticsConfig(),
		Screenshot:               DefaultScreenshotConfig(),
		Notify:                   DefaultNotifyConfig(),
		Scheduler:                DefaultSchedulerConfig(),
		Checkpoint:               DefaultCheckpointConfig(),
		MatchConfidenceThreshold: 0.6,
	}
}

package config

import "time"

// QueueConfig contains orchestrator worker pool configuration.
// These values control how pending analyses are polled, claimed, and
// processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes analyses.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentAnalyses is the global limit of concurrent analyses being
	// processed across ALL replicas/pods (spec §5's ceiling of 4).
	// Enforced by a database COUNT(*) check.
	MaxConcurrentAnalyses int `yaml:"max_concurrent_analyses"`

	// PollInterval is the base interval for checking pending analyses.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval plus a random [0, PollIntervalJitter).
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// AnalysisTimeout is the deadline of the context a single analysis is
	// processed under; when it expires, the analysis's in-flight calls are
	// cancelled.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active analyses
	// to complete during shutdown. Should match AnalysisTimeout.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned analyses.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long an analysis can stay processing, counted
	// from its started_at, before it is considered orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// WorkflowRetries is the number of automatic retries of the full step
	// sequence before an analysis is marked failed (spec §4.1: 2).
	WorkflowRetries uint64 `yaml:"workflow_retries"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentAnalyses:   4,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		AnalysisTimeout:         10 * time.Minute,
		GracefulShutdownTimeout: 10 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		WorkflowRetries:         2,
	}
}

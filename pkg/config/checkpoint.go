package config

// CheckpointConfig configures the daily checkpoint engine's eligibility
// scan (spec §4.5).
type CheckpointConfig struct {
	// BatchPageSize is the page size used when paginating the eligibility
	// scan over detected_changes so a single run never loads the whole
	// table into memory.
	BatchPageSize int `yaml:"batch_page_size"`
}

// DefaultCheckpointConfig returns the built-in checkpoint batch defaults.
func DefaultCheckpointConfig() *CheckpointConfig {
	return &CheckpointConfig{BatchPageSize: 500}
}

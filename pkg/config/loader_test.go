package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeNoOverrideFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 0.6, cfg.MatchConfidenceThreshold)
}

func TestInitializeWithOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SENTINEL_TEST_LLM_KEY", "secret-key")

	yamlContent := `
queue:
  worker_count: 8
match_confidence_threshold: 0.75
llm:
  page_audit:
    api_key: {{.SENTINEL_TEST_LLM_KEY}}
    max_attempts: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, 0.75, cfg.MatchConfidenceThreshold)
	assert.Equal(t, "secret-key", cfg.LLM.PageAudit.APIKey)
	assert.Equal(t, 5, cfg.LLM.PageAudit.MaxAttempts)
	// Unset fields keep the default from the other call sites.
	assert.Equal(t, 3, cfg.LLM.QuickDiff.MaxAttempts)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.MatchConfidenceThreshold = 1.5

	err := cfg.Validate()
	require.Error(t, err)
}

package config

import "time"

// AnalyticsConfig holds the engine-wide defaults shared by every analytics
// provider adapter (spec §9: Provider is a variant over
// {posthog, ga4, supabase, none}). Per-user credentials are not part of
// static configuration — they are decrypted per checkpoint batch from the
// user's stored credentials and are out of scope for this package.
type AnalyticsConfig struct {
	// RequestTimeout bounds a single metricsForWindow call to a provider.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PostHogBaseURL / GA4BaseURL are the default API hosts used when a
	// user's credential record doesn't override them (self-hosted PostHog
	// instances commonly do).
	PostHogBaseURL string `yaml:"posthog_base_url"`
	GA4BaseURL     string `yaml:"ga4_base_url"`
}

// DefaultAnalyticsConfig returns the built-in analytics defaults.
func DefaultAnalyticsConfig() *AnalyticsConfig {
	return &AnalyticsConfig{
		RequestTimeout: 15 * time.Second,
		PostHogBaseURL: "https://app.posthog.com",
		GA4BaseURL:     "https://analyticsdata.googleapis.com",
	}
}

// ScreenshotConfig configures the out-of-scope screenshot-service client.
type ScreenshotConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	MobileEnabled bool          `yaml:"mobile_enabled"`
}

// DefaultScreenshotConfig returns the built-in screenshot-service defaults.
func DefaultScreenshotConfig() *ScreenshotConfig {
	return &ScreenshotConfig{
		Timeout:       20 * time.Second,
		MaxAttempts:   3,
		MobileEnabled: true,
	}
}

// NotifyConfig configures outbound email notifications (spec §6 Email).
// Email delivery itself is an out-of-scope external collaborator (spec
// §1); BaseURL/APIKey address whatever transactional email API the
// EmailSender implementation is pointed at, the same shape as
// ScreenshotConfig for the screenshot-service collaborator.
type NotifyConfig struct {
	FromAddress  string        `yaml:"from_address"`
	DashboardURL string        `yaml:"dashboard_url"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// DefaultNotifyConfig returns the built-in notification defaults.
func DefaultNotifyConfig() *NotifyConfig {
	return &NotifyConfig{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
	}
}

// SchedulerConfig configures the cron-driven scan and digest fan-out
// (spec §4.8, §6).
type SchedulerConfig struct {
	DailyScanCron   string        `yaml:"daily_scan_cron"`
	WeeklyScanCron  string        `yaml:"weekly_scan_cron"`
	DigestCron      string        `yaml:"digest_cron"`
	CheckpointCron  string        `yaml:"checkpoint_cron"`
	HealthProbeCron string        `yaml:"health_probe_cron"`
	DigestLookback  time.Duration `yaml:"digest_lookback"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

// DefaultSchedulerConfig returns the cron schedule from spec §6.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		DailyScanCron:   "0 9 * * *",
		WeeklyScanCron:  "0 9 * * 1",
		DigestCron:      "0 11 * * *",
		CheckpointCron:  "30 10 * * *",
		HealthProbeCron: "*/30 * * * *",
		DigestLookback:  3 * time.Hour,
		TickInterval:    1 * time.Minute,
	}
}

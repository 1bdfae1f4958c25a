// Package providers wires analytics adapters behind a single interface so
// the checkpoint engine never branches on credential shape.
package providers

import (
	"context"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// Kind identifies which backend a Provider talks to.
type Kind string

const (
	KindPostHog  Kind = "posthog"
	KindGA4      Kind = "ga4"
	KindSupabase Kind = "supabase"
	KindNone     Kind = "none"
)

// Credentials is a discriminated union over the shapes each provider kind
// needs. Only the fields matching Kind are populated.
type Credentials struct {
	Kind Kind

	// PostHog
	PostHogProjectAPIKey string
	PostHogHost          string

	// GA4
	GA4PropertyID   string
	GA4ClientEmail  string
	GA4PrivateKey   string

	// Supabase-style owned-database adapter
	SupabaseURL     string
	SupabaseAnonKey string
}

// Provider is the uniform analytics access surface the checkpoint engine
// calls against. Every adapter — including the no-op "none" fallback —
// implements it identically.
type Provider interface {
	// MetricsForWindow returns before/after metric readings over
	// [start, end) for url, each Metric.Name exactly as given in
	// metricNames. FriendlyLabel maps recognized names to display labels;
	// unrecognized names pass through it untransformed.
	MetricsForWindow(ctx context.Context, url string, metricNames []string, start, end time.Time) ([]models.Metric, error)
	// Label identifies which backend served the metrics, recorded on every
	// checkpoint row.
	Label() string
}

// New constructs the Provider matching creds.Kind. A decrypt/init failure
// anywhere upstream should be caught by the caller and downgraded to
// NewNoneProvider rather than propagated, per the checkpoint engine's
// provider-init-failure policy.
func New(creds Credentials, httpTimeout time.Duration) Provider {
	switch creds.Kind {
	case KindPostHog:
		return NewPostHogProvider(creds.PostHogProjectAPIKey, creds.PostHogHost, httpTimeout)
	case KindGA4:
		return NewGA4Provider(creds.GA4PropertyID, creds.GA4ClientEmail, creds.GA4PrivateKey, httpTimeout)
	case KindSupabase:
		return NewSupabaseProvider(creds.SupabaseURL, creds.SupabaseAnonKey, httpTimeout)
	default:
		return NewNoneProvider()
	}
}

package providers

import (
	"context"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// NoneProvider is the no-op adapter used when a user has no analytics
// credentials configured, or provider init failed and was downgraded. It
// returns no metrics, driving the checkpoint engine's deterministic
// fallback path and an inconclusive assessment.
type NoneProvider struct{}

// NewNoneProvider creates a NoneProvider.
func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (NoneProvider) Label() string { return string(KindNone) }

func (NoneProvider) MetricsForWindow(_ context.Context, _ string, _ []string, _, _ time.Time) ([]models.Metric, error) {
	return nil, nil
}

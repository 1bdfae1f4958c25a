package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendlyLabel(t *testing.T) {
	assert.Equal(t, "Conversion rate", FriendlyLabel("conversion_rate"))
	assert.Equal(t, "some_custom_metric", FriendlyLabel("some_custom_metric"))
}

func TestChangePercent(t *testing.T) {
	assert.InDelta(t, 20.0, changePercent(100, 120), 0.001)
	assert.Equal(t, 0.0, changePercent(0, 50))
}

func TestBuildMetric(t *testing.T) {
	m := buildMetric("conversion_rate", 10, 12)
	assert.Equal(t, "conversion_rate", m.Name)
	assert.InDelta(t, 20.0, m.ChangePct, 0.001)
}

func TestNoneProvider(t *testing.T) {
	p := NewNoneProvider()
	assert.Equal(t, "none", p.Label())

	metrics, err := p.MetricsForWindow(context.Background(), "https://example.com", []string{"conversion_rate"}, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, metrics)
}

func TestNewDefaultsToNoneOnUnknownKind(t *testing.T) {
	p := New(Credentials{Kind: "unknown"}, time.Second)
	assert.Equal(t, "none", p.Label())
}

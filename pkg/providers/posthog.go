package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// PostHogProvider reads aggregate event counts from a PostHog project via
// its HogQL query endpoint, modeled on the HTTP/JSON client shape used
// throughout this codebase rather than PostHog's Go SDK, since a single
// thin client covers every adapter with one dependency.
type PostHogProvider struct {
	projectAPIKey string
	host          string
	httpClient    *http.Client
}

// NewPostHogProvider creates a PostHogProvider. host is the PostHog
// instance base URL (e.g. https://app.posthog.com).
func NewPostHogProvider(projectAPIKey, host string, timeout time.Duration) *PostHogProvider {
	if host == "" {
		host = "https://app.posthog.com"
	}
	return &PostHogProvider{
		projectAPIKey: projectAPIKey,
		host:          host,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (p *PostHogProvider) Label() string { return string(KindPostHog) }

type posthogQueryResponse struct {
	Results [][]float64 `json:"results"`
}

// MetricsForWindow queries a before/after aggregate for each metric name
// against the page's URL, using the split point between start and end as
// the dividing line: the first half of [start, end) is "before", the
// second half is "after". For a daily checkpoint engine this only ever
// receives a single before/after pair per horizon, so the halves collapse
// onto the two windows CheckpointRow records.
func (p *PostHogProvider) MetricsForWindow(ctx context.Context, url string, metricNames []string, start, end time.Time) ([]models.Metric, error) {
	mid := start.Add(end.Sub(start) / 2)

	out := make([]models.Metric, 0, len(metricNames))
	for _, name := range metricNames {
		before, err := p.aggregate(ctx, url, name, start, mid)
		if err != nil {
			return nil, fmt.Errorf("posthog before window for %s: %w", name, err)
		}
		after, err := p.aggregate(ctx, url, name, mid, end)
		if err != nil {
			return nil, fmt.Errorf("posthog after window for %s: %w", name, err)
		}
		out = append(out, buildMetric(name, before, after))
	}
	return out, nil
}

func (p *PostHogProvider) aggregate(ctx context.Context, url, metricName string, start, end time.Time) (float64, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"kind":  "HogQLQuery",
			"query": hogQLForMetric(metricName, url, start, end),
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("marshal query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/projects/@current/query/", p.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, jsonReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.projectAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query posthog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("posthog returned HTTP %d", resp.StatusCode)
	}

	var decoded posthogQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode posthog response: %w", err)
	}
	if len(decoded.Results) == 0 || len(decoded.Results[0]) == 0 {
		return 0, nil
	}
	return decoded.Results[0][0], nil
}

// hogQLForMetric maps a recognized metric name to a HogQL aggregate over
// the page's events within [start, end). Unrecognized names fall back to
// a count of all events at the page's URL, since PostHog has no schema to validate an
// unknown metric name against up front.
func hogQLForMetric(metricName, url string, start, end time.Time) string {
	table := "events"
	switch metricName {
	case "conversion_rate", "signup_rate", "checkout_completed":
		return fmt.Sprintf(
			`SELECT countIf(event = 'conversion') / nullIf(count(), 0) FROM %s WHERE properties.$current_url = '%s' AND timestamp >= '%s' AND timestamp < '%s'`,
			table, url, start.Format(time.RFC3339), end.Format(time.RFC3339))
	default:
		return fmt.Sprintf(
			`SELECT count() FROM %s WHERE properties.$current_url = '%s' AND timestamp >= '%s' AND timestamp < '%s'`,
			table, url, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
}

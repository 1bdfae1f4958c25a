package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// SupabaseProvider reads aggregate metrics from an owned-database table
// via Supabase's PostgREST interface, for users who track metrics in their
// own schema instead of (or alongside) an events-based analytics tool.
type SupabaseProvider struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewSupabaseProvider creates a SupabaseProvider against baseURL (the
// project's REST endpoint, e.g. https://xyzcompany.supabase.co/rest/v1).
func NewSupabaseProvider(baseURL, anonKey string, timeout time.Duration) *SupabaseProvider {
	return &SupabaseProvider{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *SupabaseProvider) Label() string { return string(KindSupabase) }

type supabaseMetricRow struct {
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
}

// MetricsForWindow queries the page_metrics table (the convention expected
// of a Supabase-backed adapter) for each metric name's average value
// within a window, once for [start, mid) and once for [mid, end).
func (p *SupabaseProvider) MetricsForWindow(ctx context.Context, pageURL string, metricNames []string, start, end time.Time) ([]models.Metric, error) {
	mid := start.Add(end.Sub(start) / 2)

	out := make([]models.Metric, 0, len(metricNames))
	for _, name := range metricNames {
		before, err := p.average(ctx, pageURL, name, start, mid)
		if err != nil {
			return nil, fmt.Errorf("supabase before window for %s: %w", name, err)
		}
		after, err := p.average(ctx, pageURL, name, mid, end)
		if err != nil {
			return nil, fmt.Errorf("supabase after window for %s: %w", name, err)
		}
		out = append(out, buildMetric(name, before, after))
	}
	return out, nil
}

func (p *SupabaseProvider) average(ctx context.Context, pageURL, metricName string, start, end time.Time) (float64, error) {
	q := url.Values{}
	q.Set("select", "metric_name,value")
	q.Set("page_url", "eq."+pageURL)
	q.Set("metric_name", "eq."+metricName)
	q.Set("recorded_at", "gte."+start.Format(time.RFC3339))
	q.Add("recorded_at", "lt."+end.Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/page_metrics?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Authorization", "Bearer "+p.anonKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query supabase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("supabase returned HTTP %d", resp.StatusCode)
	}

	var rows []supabaseMetricRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("decode supabase response: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var sum float64
	for _, r := range rows {
		sum += r.Value
	}
	return sum / float64(len(rows)), nil
}

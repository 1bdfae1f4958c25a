package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// GA4Provider reads aggregate metrics from the Google Analytics Data API
// (GA4) via the shared HTTP/JSON client shape. Its requests carry no
// Authorization header.
type GA4Provider struct {
	propertyID  string
	clientEmail string
	privateKey  string
	httpClient  *http.Client
}

// NewGA4Provider creates a GA4Provider. clientEmail and privateKey are
// stored but no token is minted from them, and nothing is read from ctx:
// runReport sends its requests without credentials.
func NewGA4Provider(propertyID, clientEmail, privateKey string, timeout time.Duration) *GA4Provider {
	return &GA4Provider{
		propertyID:  propertyID,
		clientEmail: clientEmail,
		privateKey:  privateKey,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (p *GA4Provider) Label() string { return string(KindGA4) }

type ga4RunReportResponse struct {
	Rows []struct {
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

// MetricsForWindow runs one GA4 runReport call per window half, matching
// PostHogProvider's before/after split against the same [start, end) pair.
func (p *GA4Provider) MetricsForWindow(ctx context.Context, url string, metricNames []string, start, end time.Time) ([]models.Metric, error) {
	mid := start.Add(end.Sub(start) / 2)

	out := make([]models.Metric, 0, len(metricNames))
	for _, name := range metricNames {
		before, err := p.runReport(ctx, url, name, start, mid)
		if err != nil {
			return nil, fmt.Errorf("ga4 before window for %s: %w", name, err)
		}
		after, err := p.runReport(ctx, url, name, mid, end)
		if err != nil {
			return nil, fmt.Errorf("ga4 after window for %s: %w", name, err)
		}
		out = append(out, buildMetric(name, before, after))
	}
	return out, nil
}

func (p *GA4Provider) runReport(ctx context.Context, url, metricName string, start, end time.Time) (float64, error) {
	reqBody := map[string]interface{}{
		"dimensionFilter": map[string]interface{}{
			"filter": map[string]interface{}{
				"fieldName": "pagePath",
				"stringFilter": map[string]interface{}{
					"matchType": "EXACT",
					"value":     url,
				},
			},
		},
		"dateRanges": []map[string]string{{
			"startDate": start.Format("2006-01-02"),
			"endDate":   end.Format("2006-01-02"),
		}},
		"metrics": []map[string]string{{"name": ga4MetricName(metricName)}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("https://analyticsdata.googleapis.com/v1beta/properties/%s:runReport", p.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, jsonReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("run ga4 report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ga4 returned HTTP %d", resp.StatusCode)
	}

	var decoded ga4RunReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode ga4 response: %w", err)
	}
	if len(decoded.Rows) == 0 || len(decoded.Rows[0].MetricValues) == 0 {
		return 0, nil
	}

	var v float64
	if _, err := fmt.Sscanf(decoded.Rows[0].MetricValues[0].Value, "%f", &v); err != nil {
		return 0, fmt.Errorf("parse ga4 metric value: %w", err)
	}
	return v, nil
}

// ga4MetricName maps the engine's recognized metric names to GA4's own
// metric identifiers; unrecognized names are passed through as GA4 custom
// event counts.
func ga4MetricName(name string) string {
	switch name {
	case "bounce_rate":
		return "bounceRate"
	case "session_duration":
		return "averageSessionDuration"
	case "pageviews":
		return "screenPageViews"
	case "unique_visitors":
		return "totalUsers"
	default:
		return "eventCount"
	}
}

package providers

import "github.com/pagewatch/sentinel/pkg/models"

// friendlyLabels maps recognized provider metric names to the label shown
// in notifications and the dashboard. Names absent from this table pass
// through untransformed, per the analytics provider contract.
var friendlyLabels = map[string]string{
	"conversion_rate":    "Conversion rate",
	"signup_rate":        "Signup rate",
	"bounce_rate":        "Bounce rate",
	"session_duration":   "Avg. session duration",
	"pageviews":          "Pageviews",
	"unique_visitors":    "Unique visitors",
	"cart_abandon_rate":  "Cart abandonment rate",
	"checkout_completed": "Checkout completions",
	"click_through_rate": "Click-through rate",
	"revenue_per_visit":  "Revenue per visit",
}

// FriendlyLabel returns the shared friendly label for a recognized metric
// name, or the name itself when unrecognized.
func FriendlyLabel(name string) string {
	if label, ok := friendlyLabels[name]; ok {
		return label
	}
	return name
}

// changePercent computes the before/after change as a percentage of before.
// A zero before value can't express a percentage change, so it reports 0
// rather than dividing by zero.
func changePercent(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / before * 100
}

func buildMetric(name string, before, after float64) models.Metric {
	return models.Metric{
		Name:      name,
		Before:    before,
		After:     after,
		ChangePct: changePercent(before, after),
	}
}

package horizon

import "github.com/pagewatch/sentinel/pkg/models"

// neutralBandPct is the |change_percent| threshold below which a metric is
// neutral rather than improved/regressed.
const neutralBandPct = 5.0

// FallbackAssessment is the deterministic fallback assessor (spec §4.5),
// used when the checkpoint-assessor LLM call exhausts its retries. Given the
// same metrics list it always returns the same assessment and confidence
// (spec §8 Fallback determinism law).
func FallbackAssessment(metrics []models.Metric) (models.Assessment, float64) {
	if len(metrics) == 0 {
		return models.AssessmentInconclusive, 0
	}

	improved, regressed := 0, 0
	for _, m := range metrics {
		switch {
		case abs(m.ChangePct) <= neutralBandPct:
			// neutral, counts toward neither side
		case m.ChangePct > 0:
			improved++
		default:
			regressed++
		}
	}

	switch {
	case improved > regressed:
		return models.AssessmentImproved, 0.3
	case regressed > improved:
		return models.AssessmentRegressed, 0.3
	default:
		return models.AssessmentNeutral, 0.3
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

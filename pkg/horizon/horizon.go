// Package horizon implements the pure, testable calculators behind the
// checkpoint engine's due-horizon set, window boundaries, and the
// deterministic fallback assessor (spec §4.5).
package horizon

import (
	"sort"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
)

// DueSet returns the horizons in models.Horizons that are newly due for a
// change first detected at firstDetectedAt, given the set of horizons
// already computed (existing). now is the evaluation instant.
//
// H = { h : now >= firstDetectedAt + h days AND h not in existing }
func DueSet(now, firstDetectedAt time.Time, existing []int) []int {
	seen := make(map[int]bool, len(existing))
	for _, h := range existing {
		seen[h] = true
	}

	var due []int
	for _, h := range models.Horizons {
		if seen[h] {
			continue
		}
		boundary := firstDetectedAt.AddDate(0, 0, h)
		if !now.Before(boundary) {
			due = append(due, h)
		}
	}
	sort.Ints(due)
	return due
}

// Window is a half/closed metric comparison window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows computes the before/after comparison windows for a horizon.
//
//	beforeWindow = [changeDate - h, changeDate)
//	afterWindow  = (changeDate, changeDate + h]
func Windows(changeDate time.Time, horizonDays int) (before, after Window) {
	d := time.Duration(horizonDays) * 24 * time.Hour
	before = Window{Start: changeDate.Add(-d), End: changeDate}
	after = Window{Start: changeDate, End: changeDate.Add(d)}
	return before, after
}

// Gate is the outcome of applying the horizon gating rules (spec §4.5) to
// an assessment at a given horizon against the change's current status.
type Gate struct {
	// Transition is the new status, or "" if no transition applies.
	Transition models.ChangeStatus
}

// ApplyGating implements the horizon gating rules:
//
//	D+7, D+14:  never transition (early signals only).
//	D+30:       first canonical resolution. improved -> validated,
//	            regressed -> regressed, otherwise -> inconclusive.
//	D+60, D+90: confirm or reverse the earlier terminal status; the higher
//	            horizon's assessment overrides.
func ApplyGating(horizonDays int, assessment models.Assessment, currentStatus models.ChangeStatus) Gate {
	if currentStatus.IsTerminal() {
		return Gate{}
	}

	switch horizonDays {
	case 7, 14:
		return Gate{}
	case 30:
		switch assessment {
		case models.AssessmentImproved:
			return Gate{Transition: models.ChangeStatusValidated}
		case models.AssessmentRegressed:
			return Gate{Transition: models.ChangeStatusRegressed}
		default:
			return Gate{Transition: models.ChangeStatusInconclusive}
		}
	case 60, 90:
		switch assessment {
		case models.AssessmentImproved:
			if currentStatus != models.ChangeStatusValidated {
				return Gate{Transition: models.ChangeStatusValidated}
			}
		case models.AssessmentRegressed:
			if currentStatus != models.ChangeStatusRegressed {
				return Gate{Transition: models.ChangeStatusRegressed}
			}
		default:
			if currentStatus != models.ChangeStatusInconclusive {
				return Gate{Transition: models.ChangeStatusInconclusive}
			}
		}
		return Gate{}
	default:
		return Gate{}
	}
}

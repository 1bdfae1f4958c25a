package models

import "encoding/json"

// ToMap round-trips v through JSON to the map[string]interface{} shape the
// store layer persists into jsonb columns.
func ToMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap round-trips a jsonb-shaped map back into a typed value.
func FromMap(m map[string]interface{}, v interface{}) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// StructuredOutput is the vision-audit structured payload stored on
// Analysis.structured_output (spec §6).
type StructuredOutput struct {
	FindingsCount        int              `json:"findingsCount"`
	Verdict              string           `json:"verdict"`
	VerdictContext       string           `json:"verdictContext"`
	ProjectedImpactRange string           `json:"projectedImpactRange"`
	Summary              string           `json:"summary"`
	Findings             []Finding        `json:"findings"`
	HeadlineRewrite      *HeadlineRewrite `json:"headlineRewrite,omitempty"`
}

// Finding is one structured audit finding.
type Finding struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	ElementType  string      `json:"elementType"`
	Impact       string      `json:"impact"` // high|medium|low
	CurrentValue string      `json:"currentValue"`
	Suggestion   string      `json:"suggestion"`
	Prediction   Prediction  `json:"prediction"`
	Assumption   string      `json:"assumption"`
	Methodology  string      `json:"methodology"`
}

// Prediction is a finding's projected impact.
type Prediction struct {
	Range        string `json:"range"`
	FriendlyText string `json:"friendlyText"`
}

// HeadlineRewrite is an optional structured-output suggestion to rewrite a
// headline.
type HeadlineRewrite struct {
	Current             string  `json:"current"`
	Suggested           string  `json:"suggested"`
	Reasoning           string  `json:"reasoning"`
	CurrentAnnotation   *string `json:"currentAnnotation,omitempty"`
	SuggestedAnnotation *string `json:"suggestedAnnotation,omitempty"`
}

// ChangesSummary is the payload stored on Analysis.changes_summary
// (spec §6). Progress is always the canonical composer's output; LLM output
// is overwritten there before persistence (spec §4.2 Canonical overwrite).
type ChangesSummary struct {
	Verdict            string             `json:"verdict"`
	VerdictContext     string             `json:"verdictContext,omitempty"`
	Changes            []ChangeCandidate  `json:"changes"`
	Suggestions        []SuggestionDraft  `json:"suggestions"`
	Correlation        *Correlation       `json:"correlation"`
	Progress           Progress           `json:"progress"`
	RunningSummary     string             `json:"running_summary"`
	StrategyNarrative  string             `json:"strategy_narrative,omitempty"`
	Observations       []Observation      `json:"observations,omitempty"`
	RevertedChangeIDs  []string           `json:"revertedChangeIds,omitempty"`
	Error              string             `json:"_error,omitempty"`
}

// ChangeCandidate is one change as reported by an LLM call site, before
// fingerprint validation has run.
type ChangeCandidate struct {
	Element          string   `json:"element"`
	Scope            string   `json:"scope"`
	Before           string   `json:"before"`
	After            string   `json:"after"`
	Description      string   `json:"description,omitempty"`
	MatchedChangeID  *string  `json:"matched_change_id,omitempty"`
	MatchConfidence  *float64 `json:"match_confidence,omitempty"`
	MatchRationale   string   `json:"match_rationale,omitempty"`
}

// SuggestionDraft is one suggestion as reported by the post-analysis LLM,
// before dedup/upsert.
type SuggestionDraft struct {
	Title        string `json:"title"`
	Element      string `json:"element"`
	SuggestedFix string `json:"suggestedFix"`
	Impact       string `json:"impact"`
}

// Correlation is the optional analytics-evidence block.
type Correlation struct {
	HasEnoughData bool             `json:"hasEnoughData"`
	Metrics       []MetricAssessed `json:"metrics"`
}

// MetricAssessed is one analytics metric, named and assessed.
type MetricAssessed struct {
	Name         string  `json:"name"`
	FriendlyName string  `json:"friendlyName"`
	Change       float64 `json:"change"`
	Assessment   string  `json:"assessment"`
}

// Progress is the composed {validated, watching, open} view over a page's
// current DB state (spec §4.7). The sole writer is pkg/progress.
type Progress struct {
	Validated      int              `json:"validated"`
	Watching       int              `json:"watching"`
	Open           int              `json:"open"`
	ValidatedItems []DetectedChange `json:"validatedItems"`
	WatchingItems  []DetectedChange `json:"watchingItems"`
	OpenItems      []TrackedSuggestion `json:"openItems"`
}

// Observation is a single per-change narrative note, validated against the
// page's change set before being attached.
type Observation struct {
	ChangeID string `json:"changeId"`
	Text     string `json:"text"`
}

// Metric is one analytics metric as returned by a Provider, before
// friendly-name mapping or assessment.
type Metric struct {
	Name         string  `json:"name"`
	Before       float64 `json:"before"`
	After        float64 `json:"after"`
	ChangePct    float64 `json:"change_percent"`
}

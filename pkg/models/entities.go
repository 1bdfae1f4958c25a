package models

import "time"

// Page is a watched URL owned by a user.
type Page struct {
	ID               string
	UserID           string
	URL              string
	ScanFrequency    ScanFrequency
	StableBaselineID *string
	LastScanID       *string
	MetricFocus      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Analysis is one capture+audit attempt for a Page.
type Analysis struct {
	ID                   string
	PageID               string
	UserID               string
	Status               AnalysisStatus
	DesktopScreenshotURL *string
	MobileScreenshotURL  *string
	StructuredOutput     map[string]interface{}
	ChangesSummary       map[string]interface{}
	ParentAnalysisID     *string
	DeployID             *string
	TriggerType          TriggerType
	CreatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	ErrorMessage         *string
}

// Deploy is one webhook-ingested commit batch.
type Deploy struct {
	ID           string
	UserID       string
	RepoID       string
	CommitSHA    string
	FullName     string
	Status       DeployStatus
	ChangedFiles []string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// DetectedChange is the central lifecycle entity.
type DetectedChange struct {
	ID                       string
	PageID                   string
	UserID                   string
	Element                  string
	Scope                    ChangeScope
	BeforeValue              string
	AfterValue               string
	Description              string
	Status                   ChangeStatus
	FirstDetectedAt          time.Time
	FirstDetectedAnalysisID  string
	Hypothesis               *string
	CorrelationMetrics       map[string]interface{}
	CorrelationUnlockedAt    *time.Time
	ObservationText          *string
	MatchConfidence          *float64
	MatchRationale           *string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// CheckpointRow is an immutable metric-window evaluation at a fixed
// post-change horizon. Unique on (ChangeID, HorizonDays).
type CheckpointRow struct {
	ID                string
	ChangeID          string
	HorizonDays       int
	BeforeWindowStart time.Time
	BeforeWindowEnd   time.Time
	AfterWindowStart  time.Time
	AfterWindowEnd    time.Time
	MetricsJSON       map[string]interface{}
	Assessment        Assessment
	Confidence        *float64
	Reasoning         string
	DataSources       []string
	Provider          string
	CreatedAt         time.Time
}

// LifecycleEvent is an audit row describing one DetectedChange status
// mutation.
type LifecycleEvent struct {
	ID           string
	ChangeID     string
	FromStatus   *string
	ToStatus     string
	Reason       *string
	ActorType    ActorType
	CheckpointID *string
	CreatedAt    time.Time
}

// TrackedSuggestion is a persistent open-action surfaced by post-analysis.
type TrackedSuggestion struct {
	ID               string
	PageID           string
	Title            string
	Element          string
	SuggestedFix     string
	Impact           SuggestionImpact
	Status           SuggestionStatus
	TimesSuggested   int
	FirstSuggestedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OutcomeFeedback is a user judgment on a prior checkpoint.
type OutcomeFeedback struct {
	ID           string
	ChangeID     string
	CheckpointID *string
	FeedbackType FeedbackType
	Text         *string
	CreatedAt    time.Time
}

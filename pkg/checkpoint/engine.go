// Package checkpoint implements the daily checkpoint engine (spec §4.5):
// a batched, horizon-gated re-evaluation of every non-terminal detected
// change against its before/after analytics window, driven by a
// deterministic gating table and a fallback assessor when the assessor
// LLM is unavailable.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/horizon"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/providers"
	"github.com/pagewatch/sentinel/pkg/store"
)

var defaultMetricNames = []string{"pageviews", "unique_visitors", "conversion_rate", "bounce_rate"}

// Engine runs one checkpoint batch: eligibility scan, per-change-per-horizon
// metric gathering and gating, post-batch canonical progress recomposition,
// and coalesced terminal-status notifications.
type Engine struct {
	cfg             *config.CheckpointConfig
	changes         *store.ChangeStore
	pages           *store.PageStore
	lifecycleEvents *store.LifecycleStore
	checkpoints     *store.CheckpointStore
	feedback        *store.FeedbackStore
	analyses        *store.AnalysisStore
	composer        *progress.Composer
	assessor        *llmshim.CheckpointClient
	strategy        *llmshim.StrategyClient
	credentials     CredentialResolver
	notifier        Notifier
	providerTimeout time.Duration
}

// New creates a checkpoint Engine.
func New(cfg *config.CheckpointConfig, changes *store.ChangeStore, pages *store.PageStore,
	lifecycleEvents *store.LifecycleStore, checkpoints *store.CheckpointStore, feedback *store.FeedbackStore,
	analyses *store.AnalysisStore, composer *progress.Composer, assessor *llmshim.CheckpointClient,
	strategy *llmshim.StrategyClient, credentials CredentialResolver, notifier Notifier, providerTimeout time.Duration) *Engine {
	return &Engine{
		cfg: cfg, changes: changes, pages: pages, lifecycleEvents: lifecycleEvents,
		checkpoints: checkpoints, feedback: feedback, analyses: analyses, composer: composer,
		assessor: assessor, strategy: strategy, credentials: credentials, notifier: notifier,
		providerTimeout: providerTimeout,
	}
}

// Run executes one full checkpoint batch. It never returns early on a
// per-change or per-horizon failure: every failure is logged and the batch
// continues, since one bad row must not starve the rest of the day's work.
func (e *Engine) Run(ctx context.Context) error {
	providerCache := make(map[string]providers.Provider)
	touchedPages := make(map[string]bool)
	pending := make(map[string]pendingNotification)

	for _, h := range models.Horizons {
		e.runHorizon(ctx, h, providerCache, touchedPages, pending)
	}

	e.recomposeTouchedPages(ctx, touchedPages)
	e.flushNotifications(ctx, pending)
	return nil
}

func (e *Engine) runHorizon(ctx context.Context, horizonDays int, providerCache map[string]providers.Provider,
	touchedPages map[string]bool, pending map[string]pendingNotification) {
	pageSize := e.cfg.BatchPageSize
	offset := 0
	for {
		batch, err := e.changes.ListDueForHorizon(ctx, horizonDays, pageSize, offset)
		if err != nil {
			slog.Error("list changes due for horizon failed", "horizon_days", horizonDays, "error", err)
			return
		}
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			e.processChangeHorizon(ctx, c, horizonDays, providerCache, touchedPages, pending)
		}
		if len(batch) < pageSize {
			return
		}
		offset += pageSize
	}
}

func (e *Engine) processChangeHorizon(ctx context.Context, change *models.DetectedChange, horizonDays int,
	providerCache map[string]providers.Provider, touchedPages map[string]bool, pending map[string]pendingNotification) {
	existing, err := e.checkpoints.GetByChangeAndHorizon(ctx, change.ID, horizonDays)
	if err != nil {
		slog.Error("lookup existing checkpoint failed", "change_id", change.ID, "horizon_days", horizonDays, "error", err)
		return
	}
	if existing != nil {
		return
	}

	page, err := e.pages.Get(ctx, change.PageID)
	if err != nil {
		slog.Error("load page for checkpoint failed", "change_id", change.ID, "page_id", change.PageID, "error", err)
		return
	}

	provider := e.providerFor(ctx, change.UserID, providerCache)
	before, after := horizon.Windows(change.FirstDetectedAt, horizonDays)
	metricNames := metricNamesFor(page)

	metrics, err := provider.MetricsForWindow(ctx, page.URL, metricNames, before.Start, after.End)
	if err != nil {
		slog.Warn("provider metrics fetch failed, proceeding with no metrics",
			"change_id", change.ID, "provider", provider.Label(), "error", err)
		metrics = nil
	}
	disconnected := len(metrics) == 0

	prior, err := e.checkpoints.ListByChange(ctx, change.ID)
	if err != nil {
		slog.Warn("load prior checkpoints failed", "change_id", change.ID, "error", err)
	}
	priorFeedback, err := e.feedback.ListByChange(ctx, change.ID)
	if err != nil {
		slog.Warn("load feedback failed", "change_id", change.ID, "error", err)
	}

	var hypothesis, focus string
	if change.Hypothesis != nil {
		hypothesis = *change.Hypothesis
	}
	if page.MetricFocus != nil {
		focus = *page.MetricFocus
	}

	resp, _ := e.assessor.Call(ctx, llmshim.CheckpointRequest{
		Change:           *change,
		HorizonDays:      horizonDays,
		Metrics:          metrics,
		PriorCheckpoints: derefCheckpoints(prior),
		Hypothesis:       hypothesis,
		PageFocus:        focus,
		PriorFeedback:    derefFeedback(priorFeedback),
	})

	observation := resp.Reasoning
	if disconnected {
		observation += " (reason: analytics_disconnected)"
	}
	if observation == "" {
		observation = fmt.Sprintf("checkpoint at D+%d: %s", horizonDays, resp.Assessment)
	}

	metricsMap, err := models.ToMap(metrics)
	if err != nil {
		slog.Error("encode metrics for checkpoint row failed", "change_id", change.ID, "error", err)
		return
	}
	confidence := resp.Confidence
	row := &models.CheckpointRow{
		ChangeID:          change.ID,
		HorizonDays:       horizonDays,
		BeforeWindowStart: before.Start,
		BeforeWindowEnd:   before.End,
		AfterWindowStart:  after.Start,
		AfterWindowEnd:    after.End,
		MetricsJSON:       metricsMap,
		Assessment:        resp.Assessment,
		Confidence:        &confidence,
		Reasoning:         resp.Reasoning,
		DataSources:       dataSources(provider, disconnected),
		Provider:          provider.Label(),
	}

	gate := horizon.ApplyGating(horizonDays, resp.Assessment, change.Status)
	if gate.Transition == "" {
		if err := e.writeCheckpointOnly(ctx, row); err != nil {
			slog.Error("write checkpoint row failed", "change_id", change.ID, "horizon_days", horizonDays, "error", err)
			return
		}
		touchedPages[page.ID] = true
		return
	}

	if err := e.writeCheckpointWithTransition(ctx, change, row, gate.Transition, observation); err != nil {
		slog.Error("write checkpoint with transition failed", "change_id", change.ID, "horizon_days", horizonDays, "error", err)
		return
	}

	touchedPages[page.ID] = true
	resolved := *change
	resolved.Status = gate.Transition
	resolved.ObservationText = &observation
	pending[change.ID] = pendingNotification{userID: change.UserID, pageURL: page.URL, change: resolved, finalStatus: gate.Transition}
}

// writeCheckpointOnly persists a checkpoint row with no accompanying
// status transition (D+7/D+14, or a D+30+ horizon that reconfirms the
// existing status), atomically with nothing else.
func (e *Engine) writeCheckpointOnly(ctx context.Context, row *models.CheckpointRow) error {
	tx, err := e.changes.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.checkpoints.Create(ctx, tx, row); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return tx.Commit()
}

// writeCheckpointWithTransition pairs the checkpoint row insert with the
// change's status CAS and its lifecycle audit row in a single transaction,
// mirroring pkg/lifecycle.Transition but extended with the checkpoint
// insert CheckpointStore.Create is built to pair with.
func (e *Engine) writeCheckpointWithTransition(ctx context.Context, change *models.DetectedChange,
	row *models.CheckpointRow, newStatus models.ChangeStatus, observation string) error {
	tx, err := e.changes.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint transition tx: %w", err)
	}
	defer tx.Rollback()

	obs := observation
	if err := e.changes.CASUpdateStatus(ctx, tx, change.ID, change.Status, newStatus,
		row.MetricsJSON, &obs, nil, nil); err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			return nil
		}
		return fmt.Errorf("cas update change status: %w", err)
	}
	if err := e.checkpoints.Create(ctx, tx, row); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	fromStatus := string(change.Status)
	event := &models.LifecycleEvent{
		ChangeID:     change.ID,
		FromStatus:   &fromStatus,
		ToStatus:     string(newStatus),
		Reason:       &observation,
		ActorType:    models.ActorTypeSystem,
		CheckpointID: &row.ID,
	}
	if err := e.lifecycleEvents.Append(ctx, tx, event); err != nil {
		return fmt.Errorf("append lifecycle event: %w", err)
	}
	return tx.Commit()
}

// recomposeTouchedPages runs the post-batch step (spec §4.5 "Post-batch")
// for every page that had a checkpoint written or a transition applied
// this run: recompose canonical progress and, best-effort, regenerate the
// page-level strategy narrative.
func (e *Engine) recomposeTouchedPages(ctx context.Context, touchedPages map[string]bool) {
	for pageID := range touchedPages {
		e.recomposePage(ctx, pageID)
	}
}

func (e *Engine) recomposePage(ctx context.Context, pageID string) {
	page, err := e.pages.Get(ctx, pageID)
	if err != nil {
		slog.Error("load page for progress recomposition failed", "page_id", pageID, "error", err)
		return
	}

	changes, err := e.changes.ListByPage(ctx, pageID)
	if err != nil {
		slog.Error("list changes for progress recomposition failed", "page_id", pageID, "error", err)
		return
	}
	var watching []models.DetectedChange
	for _, c := range changes {
		if c.Status == models.ChangeStatusWatching {
			watching = append(watching, *c)
		}
	}

	latest, lerr := e.analyses.LatestComplete(ctx, pageID)
	if lerr != nil {
		slog.Warn("load latest analysis for progress recomposition failed", "page_id", pageID, "error", lerr)
	}
	if latest == nil {
		// A change can't exist without a completed analysis somewhere in
		// its page's history; with none found there's nowhere to
		// materialize the snapshot onto this run.
		return
	}

	var summary models.ChangesSummary
	if derr := models.FromMap(latest.ChangesSummary, &summary); derr != nil {
		summary = models.ChangesSummary{}
	}
	priorSnapshot := summary.Progress
	summary.Progress = progress.ComposeWithFallback(ctx, e.composer, pageID, &priorSnapshot, watching)

	e.mergeStrategyNarrative(ctx, page, changes, &summary)

	summaryMap, merr := models.ToMap(summary)
	if merr != nil {
		slog.Error("marshal recomposed changes summary failed", "page_id", pageID, "error", merr)
		return
	}
	if err := e.analyses.UpdateChangesSummary(ctx, latest.ID, summaryMap); err != nil {
		slog.Error("persist recomposed changes summary failed", "page_id", pageID, "error", err)
	}
}

// mergeStrategyNarrative regenerates the optional page-level strategy
// narrative from the page's full checkpoint timeline and merges the
// LLM's per-change observations onto summary, dropping any changeId that
// isn't actually one of the page's own changes (spec §9 trust boundary).
// A skipped or failed call leaves summary untouched beyond its already-
// recomposed progress.
func (e *Engine) mergeStrategyNarrative(ctx context.Context, page *models.Page, changes []*models.DetectedChange, summary *models.ChangesSummary) {
	if e.strategy == nil {
		return
	}

	validIDs := make(map[string]bool, len(changes))
	var timeline []models.CheckpointRow
	var hypotheses []string
	for _, c := range changes {
		validIDs[c.ID] = true
		if c.Hypothesis != nil && *c.Hypothesis != "" {
			hypotheses = append(hypotheses, *c.Hypothesis)
		}
		rows, err := e.checkpoints.ListByChange(ctx, c.ID)
		if err != nil {
			slog.Warn("list checkpoints for strategy timeline failed", "change_id", c.ID, "error", err)
			continue
		}
		timeline = append(timeline, derefCheckpoints(rows)...)
	}

	var focus string
	if page.MetricFocus != nil {
		focus = *page.MetricFocus
	}

	resp, ok := e.strategy.Call(ctx, llmshim.StrategyRequest{
		URL:            page.URL,
		Focus:          focus,
		Timeline:       timeline,
		RunningSummary: summary.RunningSummary,
		Hypotheses:     hypotheses,
	})
	if !ok {
		return
	}

	if resp.StrategyNarrative != "" {
		summary.StrategyNarrative = resp.StrategyNarrative
	}
	if resp.RunningSummary != "" {
		summary.RunningSummary = resp.RunningSummary
	}

	var merged []models.Observation
	for _, obs := range resp.Observations {
		if !validIDs[obs.ChangeID] {
			continue
		}
		e.applyObservation(ctx, obs)
		merged = append(merged, obs)
	}
	summary.Observations = merged
}

// applyObservation persists one strategy-narrative observation onto its
// change row, mirroring pkg/postanalysis's own observation merge (same
// status-preserving CAS update, since an observation is narrative text,
// never a status transition).
func (e *Engine) applyObservation(ctx context.Context, obs models.Observation) {
	change, err := e.changes.Get(ctx, obs.ChangeID)
	if err != nil {
		slog.Warn("load change for observation merge failed", "change_id", obs.ChangeID, "error", err)
		return
	}
	tx, err := e.changes.BeginTx(ctx)
	if err != nil {
		slog.Warn("begin observation merge tx failed", "change_id", obs.ChangeID, "error", err)
		return
	}
	defer tx.Rollback()

	text := obs.Text
	if err := e.changes.CASUpdateStatus(ctx, tx, change.ID, change.Status, change.Status,
		change.CorrelationMetrics, &text, change.MatchConfidence, change.MatchRationale); err != nil {
		slog.Warn("apply observation failed", "change_id", obs.ChangeID, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		slog.Warn("commit observation merge failed", "change_id", obs.ChangeID, "error", err)
	}
}

func (e *Engine) providerFor(ctx context.Context, userID string, cache map[string]providers.Provider) providers.Provider {
	if p, ok := cache[userID]; ok {
		return p
	}
	creds, err := e.credentials.Resolve(ctx, userID)
	if err != nil {
		slog.Warn("credential resolution failed, downgrading to none provider", "user_id", userID, "error", err)
		creds = providers.Credentials{Kind: providers.KindNone}
	}
	p := providers.New(creds, e.providerTimeout)
	cache[userID] = p
	return p
}

func metricNamesFor(page *models.Page) []string {
	if page.MetricFocus != nil && *page.MetricFocus != "" {
		return []string{*page.MetricFocus}
	}
	return defaultMetricNames
}

func dataSources(provider providers.Provider, disconnected bool) []string {
	if disconnected {
		return []string{"none"}
	}
	return []string{provider.Label()}
}

func derefCheckpoints(rows []*models.CheckpointRow) []models.CheckpointRow {
	out := make([]models.CheckpointRow, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out
}

func derefFeedback(rows []*models.OutcomeFeedback) []models.OutcomeFeedback {
	out := make([]models.OutcomeFeedback, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out
}

func (e *Engine) flushNotifications(ctx context.Context, pending map[string]pendingNotification) {
	if e.notifier == nil {
		return
	}
	for _, n := range pending {
		if err := e.notifier.ChangeResolved(ctx, n.userID, n.pageURL, n.change, n.finalStatus); err != nil {
			slog.Warn("checkpoint resolution notification failed", "change_id", n.change.ID, "error", err)
		}
	}
}

package orchestrator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/store"
)

// PoolHealth is a snapshot of the worker pool's current load, exposed to
// the HTTP readiness endpoint.
type PoolHealth struct {
	ActiveAnalyses int
	MaxConcurrent  int
}

// WorkerPool polls for pending analyses, claims them up to the configured
// global concurrency ceiling, and runs each through the Orchestrator.
// Grounded on the teacher's worker pool: a fixed goroutine fan-out each
// running its own poll-claim-process loop, plus a registry of in-flight
// analyses keyed by id, which Health counts. Shutdown cancels the pool's
// parent context, which every in-flight analysis context derives from.
type WorkerPool struct {
	cfg      *config.QueueConfig
	orch     *Orchestrator
	analyses *store.AnalysisStore

	mu     sync.Mutex
	active map[string]context.CancelFunc

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool(cfg *config.QueueConfig, orch *Orchestrator, analyses *store.AnalysisStore) *WorkerPool {
	return &WorkerPool{cfg: cfg, orch: orch, analyses: analyses, active: make(map[string]context.CancelFunc)}
}

// Start launches the worker goroutines and the orphan detector.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	p.wg.Add(1)
	go p.runOrphanDetector(ctx)

	slog.Info("orchestrator worker pool started",
		"worker_count", p.cfg.WorkerCount, "max_concurrent_analyses", p.cfg.MaxConcurrentAnalyses)
}

// Stop signals every worker to exit and waits up to
// GracefulShutdownTimeout for in-flight analyses to finish.
func (p *WorkerPool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("orchestrator worker pool stopped")
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		slog.Warn("orchestrator worker pool shutdown timed out, in-flight analyses may be orphaned")
	}
}

// Health reports the pool's current load.
func (p *WorkerPool) Health() PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolHealth{ActiveAnalyses: len(p.active), MaxConcurrent: p.cfg.MaxConcurrentAnalyses}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := p.claimIfUnderCapacity(ctx)
		if err != nil {
			slog.Error("worker poll failed", "worker", id, "error", err)
			p.sleep(ctx)
			continue
		}
		if claimed == nil {
			p.sleep(ctx)
			continue
		}

		analysisCtx, cancel := context.WithTimeout(ctx, p.cfg.AnalysisTimeout)
		p.register(claimed.ID, cancel)
		if err := p.orch.ProcessAnalysis(analysisCtx, claimed.ID); err != nil {
			slog.Error("analysis processing failed", "analysis_id", claimed.ID, "worker", id, "error", err)
		}
		cancel()
		p.unregister(claimed.ID)
	}
}

// claimIfUnderCapacity enforces the global MaxConcurrentAnalyses ceiling
// before claiming, so a replica never pushes the cross-replica total over
// the configured cap (spec §5).
func (p *WorkerPool) claimIfUnderCapacity(ctx context.Context) (*claimedAnalysis, error) {
	n, err := p.analyses.CountProcessing(ctx)
	if err != nil {
		return nil, err
	}
	if n >= p.cfg.MaxConcurrentAnalyses {
		return nil, nil
	}
	a, err := p.analyses.ClaimNextPending(ctx)
	if err != nil || a == nil {
		return nil, err
	}
	return &claimedAnalysis{ID: a.ID}, nil
}

type claimedAnalysis struct {
	ID string
}

func (p *WorkerPool) sleep(ctx context.Context) {
	d := p.cfg.PollInterval
	if p.cfg.PollIntervalJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.cfg.PollIntervalJitter)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *WorkerPool) register(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[id] = cancel
}

func (p *WorkerPool) unregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}

func (p *WorkerPool) runOrphanDetector(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOrphans(ctx)
		}
	}
}

// sweepOrphans fails analyses that have been processing longer than
// OrphanThreshold without completing, typically from a worker crashing or
// a pod being killed mid-analysis.
func (p *WorkerPool) sweepOrphans(ctx context.Context) {
	orphans, err := p.analyses.FindOrphanedProcessing(ctx, p.cfg.OrphanThreshold)
	if err != nil {
		slog.Error("orphan scan failed", "error", err)
		return
	}
	for _, a := range orphans {
		if err := p.analyses.Fail(ctx, a.ID, "orphaned: exceeded processing timeout without completing"); err != nil {
			slog.Error("reap orphaned analysis failed", "analysis_id", a.ID, "error", err)
			continue
		}
		slog.Warn("reaped orphaned analysis", "analysis_id", a.ID)
	}
}

// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/store"
)

// Service periodically enforces retention policy over failed analyses.
// Operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config        *config.RetentionConfig
	analysisStore *store.AnalysisStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, analysisStore *store.AnalysisStore) *Service {
	return &Service{
		config:        cfg,
		analysisStore: analysisStore,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"failed_analysis_retention_days", s.config.FailedAnalysisRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldFailedAnalyses(ctx)
}

func (s *Service) deleteOldFailedAnalyses(_ context.Context) {
	count, err := s.analysisStore.DeleteOldFailed(context.Background(), s.config.FailedAnalysisRetentionDays)
	if err != nil {
		slog.Error("Retention: delete old failed analyses failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old failed analyses", "count", count)
	}
}

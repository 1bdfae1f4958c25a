// Package scheduler runs the cron-driven scan fan-out, daily digest,
// checkpoint engine trigger, and screenshot-service health probe (spec
// §4.8, §6). Grounded on pkg/cleanup/service.go's ticker-loop shape,
// generalized from a single fixed interval to five independent cron
// schedules computed by pkg/scheduler/cron.go.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/checkpoint"
	"github.com/pagewatch/sentinel/pkg/clock"
	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/notify"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
)

// job is one cron-scheduled unit of work tracked by the Scheduler loop.
type job struct {
	name     string
	schedule Schedule
	next     time.Time
	run      func(ctx context.Context)
}

// Scheduler ticks over five cron schedules and dispatches each job at
// its next fire time. A missed tick (process paused, clock skew) simply
// runs the job late on the next tick; it never double-fires for a
// single due instant, and a stuck job never blocks the others since
// each runs in its own goroutine.
type Scheduler struct {
	clk  clock.Clock
	cfg  *config.SchedulerConfig
	jobs []*job

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler wired to the engine's five scheduled jobs.
// screenshots may be nil, in which case the health-probe job is skipped
// (there is nothing useful to probe without a configured client).
func New(cfg *config.SchedulerConfig, clk clock.Clock, pages *store.PageStore, analyses *store.AnalysisStore,
	notifier *notify.Service, screenshots *screenshot.Client, checkpoints *checkpoint.Engine) (*Scheduler, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	dailySched, err := ParseSchedule(cfg.DailyScanCron)
	if err != nil {
		return nil, err
	}
	weeklySched, err := ParseSchedule(cfg.WeeklyScanCron)
	if err != nil {
		return nil, err
	}
	digestSched, err := ParseSchedule(cfg.DigestCron)
	if err != nil {
		return nil, err
	}
	checkpointSched, err := ParseSchedule(cfg.CheckpointCron)
	if err != nil {
		return nil, err
	}
	healthSched, err := ParseSchedule(cfg.HealthProbeCron)
	if err != nil {
		return nil, err
	}

	now := clk.Now()
	s := &Scheduler{clk: clk, cfg: cfg}

	s.jobs = append(s.jobs,
		&job{
			name: "daily-scan", schedule: dailySched, next: dailySched.Next(now),
			run: func(ctx context.Context) {
				dayStart := time.Now().UTC().Truncate(24 * time.Hour)
				if err := runFanout(ctx, pages, analyses, models.ScanFrequencyDaily, models.TriggerTypeDaily, dayStart); err != nil {
					slog.Error("daily scan fan-out failed", "error", err)
				}
			},
		},
		&job{
			name: "weekly-scan", schedule: weeklySched, next: weeklySched.Next(now),
			run: func(ctx context.Context) {
				dayStart := time.Now().UTC().Truncate(24 * time.Hour)
				if err := runFanout(ctx, pages, analyses, models.ScanFrequencyWeekly, models.TriggerTypeWeekly, dayStart); err != nil {
					slog.Error("weekly scan fan-out failed", "error", err)
				}
			},
		},
		&job{
			name: "digest", schedule: digestSched, next: digestSched.Next(now),
			run: func(ctx context.Context) {
				since := time.Now().Add(-s.cfg.DigestLookback)
				if err := runDigest(ctx, analyses, pages, notifier, since); err != nil {
					slog.Error("daily digest failed", "error", err)
				}
			},
		},
		&job{
			name: "checkpoint-engine", schedule: checkpointSched, next: checkpointSched.Next(now),
			run: func(ctx context.Context) {
				if err := checkpoints.Run(ctx); err != nil {
					slog.Error("checkpoint engine run failed", "error", err)
				}
			},
		},
	)

	if screenshots != nil {
		s.jobs = append(s.jobs, &job{
			name: "screenshot-health-probe", schedule: healthSched, next: healthSched.Next(now),
			run: func(ctx context.Context) {
				if err := screenshots.Health(ctx); err != nil {
					slog.Warn("screenshot service health probe failed", "error", err)
				}
			},
		})
	}

	return s, nil
}

// RunCheckpointEngineNow triggers the checkpoint engine outside its
// cron schedule, implementing the optional on-demand `checkpoints/run`
// ingress event (spec §6).
func (s *Scheduler) RunCheckpointEngineNow(ctx context.Context) {
	for _, j := range s.jobs {
		if j.name == "checkpoint-engine" {
			j.run(ctx)
			return
		}
	}
}

// Start launches the scheduler's tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("scheduler started", "job_count", len(s.jobs), "tick_interval", s.cfg.TickInterval)
}

// Stop signals the tick loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clk.Now()
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		slog.Info("scheduler firing job", "job", j.name, "due", j.next)
		go j.run(ctx)
		j.next = j.schedule.Next(now)
	}
}

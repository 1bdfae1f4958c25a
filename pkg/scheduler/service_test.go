package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/clock"
	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAt(value string) clock.Fixed {
	return clock.Fixed{T: mustUTC(time.RFC3339, value)}
}

func TestNew_SkipsHealthProbeJobWithoutScreenshotClient(t *testing.T) {
	s, err := New(config.DefaultSchedulerConfig(), fixedAt("2026-07-31T00:00:00Z"), nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.jobs, 4, "without a screenshot client the health-probe job is skipped")
}

func TestNew_RejectsInvalidCron(t *testing.T) {
	cfg := config.DefaultSchedulerConfig()
	cfg.DailyScanCron = "not a cron"
	_, err := New(cfg, fixedAt("2026-07-31T00:00:00Z"), nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestTick_FiresDueJobsAndAdvancesNext(t *testing.T) {
	var fireCount int32
	s := &Scheduler{clk: fixedAt("2026-07-31T09:00:00Z")}
	s.jobs = []*job{
		{
			name:     "test-job",
			schedule: MustParseSchedule("0 9 * * *"),
			next:     mustUTC(time.RFC3339, "2026-07-31T09:00:00Z"),
			run: func(ctx context.Context) {
				atomic.AddInt32(&fireCount, 1)
			},
		},
	}

	s.tick(context.Background())
	// run() is dispatched in a goroutine; give it a moment to execute.
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fireCount) == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.jobs[0].next.After(mustUTC(time.RFC3339, "2026-07-31T09:00:00Z")))
}

func TestTick_SkipsJobsNotYetDue(t *testing.T) {
	var fireCount int32
	s := &Scheduler{clk: fixedAt("2026-07-31T08:00:00Z")}
	s.jobs = []*job{
		{
			name:     "not-due",
			schedule: MustParseSchedule("0 9 * * *"),
			next:     mustUTC(time.RFC3339, "2026-07-31T09:00:00Z"),
			run:      func(ctx context.Context) { atomic.AddInt32(&fireCount, 1) },
		},
	}

	s.tick(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fireCount))
}

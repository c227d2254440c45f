package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

func serve(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := s.ServeBackground(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestScheduler_RunsJobPeriodically(t *testing.T) {
	s := New(Options{}, logger.Nop())
	var runs int32
	s.Register(JobSearch, 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	serve(t, s)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_FailingJobKeepsTicking(t *testing.T) {
	s := New(Options{}, logger.Nop())
	var runs int32
	s.Register(JobPostProcess, 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("disk full")
	})
	serve(t, s)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ZeroIntervalDisables(t *testing.T) {
	s := New(Options{}, logger.Nop())
	var runs int32
	s.Register(JobRefresh, 0, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	serve(t, s)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	assert.Equal(t, time.Duration(0), s.Interval(JobRefresh))

	require.NoError(t, s.RunNow(context.Background(), JobRefresh))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestScheduler_SetIntervalStopsOldTicker(t *testing.T) {
	s := New(Options{}, logger.Nop())
	var runs int32
	s.Register(JobSearch, 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	serve(t, s)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SetInterval(JobSearch, 0))
	time.Sleep(30 * time.Millisecond)
	settled := atomic.LoadInt32(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&runs))

	assert.ErrorIs(t, s.SetInterval("nope", time.Minute), ErrUnknownJob)
}

func TestScheduler_ApplyConfigBeforeServe(t *testing.T) {
	s := New(Options{}, logger.Nop())
	noop := func(ctx context.Context) error { return nil }
	s.Register(JobSearch, time.Minute, noop)
	s.Register(JobPostProcess, time.Minute, noop)

	cfg := config.Default()
	cfg.Scheduler.SearchInterval = 30
	cfg.Scheduler.PostProcessInterval = 0
	s.ApplyConfig(cfg)

	assert.Equal(t, 30*time.Minute, s.Interval(JobSearch))
	assert.Equal(t, time.Duration(0), s.Interval(JobPostProcess))
	assert.Equal(t, []string{JobPostProcess, JobSearch}, s.Jobs())
}

func TestRunNow_RejectsOverlap(t *testing.T) {
	s := New(Options{}, logger.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	s.Register(JobSearch, 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), JobSearch) }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), JobSearch), ErrRunning)
	close(release)
	require.NoError(t, <-done)

	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownJob)
}

func TestRunNow_ReturnsJobError(t *testing.T) {
	s := New(Options{}, logger.Nop())
	boom := errors.New("boom")
	s.Register(JobRefresh, 0, func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, s.RunNow(context.Background(), JobRefresh), boom)
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner runs one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler runs the orchestrator immediately and then on a fixed interval.
// Failed runs are retried sooner, with exponential backoff capped at the
// interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	ready    atomic.Bool
}

const initialRetryBackoff = 30 * time.Second

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, clock: clock, logger: logger}
}

// CheckReadiness returns nil once a run has completed without an unexpected
// error.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	backoff := initialRetryBackoff

	for {
		res, err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}

		wait := s.interval
		switch {
		case err == nil:
			s.ready.Store(true)
			backoff = initialRetryBackoff
			s.logger.Info("pipeline run finished", "records", res.RecordsUpdated, "errors", res.Errors)
		case errors.Is(err, ErrNoCycleAvailable):
			s.ready.Store(true)
			backoff = initialRetryBackoff
			s.logger.Warn("no cycle available", "error", err)
		default:
			wait = min(backoff, s.interval)
			backoff = nextBackoff(backoff, s.interval)
			s.logger.Error("pipeline run failed", "error", err, "retry_in", wait)
		}

		if !sleepWithContext(ctx, s.clock, wait) {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
	"github.com/EricDistort/QuberX/internal/repository"
)

// JobRunner holds the maintenance jobs run by the scheduler. Jobs only
// read the ledger or drop expired idempotency records; none of them move
// money.
type JobRunner struct {
	store   repository.Store
	policy  config.Policy
	limiter Sweeper
	now     func() time.Time
	timeout time.Duration
}

// Sweeper drops per-account state not touched within idle.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

func NewJobRunner(store repository.Store, policy config.Policy) *JobRunner {
	return &JobRunner{
		store:   store,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: time.Minute,
	}
}

func (jr *JobRunner) Policy() config.Policy {
	return jr.policy
}

// WithLimiter enables the rate limiter sweep.
func (jr *JobRunner) WithLimiter(l Sweeper) *JobRunner {
	jr.limiter = l
	return jr
}

func (jr *JobRunner) HasLimiter() bool {
	return jr.limiter != nil
}

func (jr *JobRunner) SweepRateLimiter() {
	jr.runWithRecovery("sweep_rate_limiter", func(context.Context) error {
		if jr.limiter == nil {
			return nil
		}
		removed := jr.limiter.Sweep(jr.policy.LimiterIdleAfter)
		slog.Info("idle rate limiters dropped", "count", removed)
		return nil
	})
}

// runWithRecovery runs one job with a bounded context, records its
// outcome and keeps a panic from taking down the scheduler goroutine.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	start := time.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			slog.Error("job panicked", "job", jobName, "panic", fmt.Sprint(r))
		}
		observability.JobRuns.WithLabelValues(jobName, status).Inc()
		slog.Info("job finished", "job", jobName, "status", status, "duration", time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	slog.Info("starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		status = "error"
		slog.Error("job failed", "job", jobName, "error", err)
	}
}

// RunAll runs every job once, in order.
func (jr *JobRunner) RunAll() {
	jr.PruneIdempotencyKeys()
	jr.Reconcile()
	jr.SweepRateLimiter()
}

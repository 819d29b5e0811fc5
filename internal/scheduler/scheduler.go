package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/EricDistort/QuberX/internal/jobs"
)

// Scheduler runs the maintenance jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		jobs: jobRunner,
	}
	s.registerJobs()
	return s
}

func (s *Scheduler) registerJobs() {
	policy := s.jobs.Policy()

	if _, err := s.cron.AddFunc(policy.PruneSchedule, s.jobs.PruneIdempotencyKeys); err != nil {
		slog.Error("failed to register PruneIdempotencyKeys job", "schedule", policy.PruneSchedule, "error", err)
	}
	if _, err := s.cron.AddFunc(policy.ReconcileSchedule, s.jobs.Reconcile); err != nil {
		slog.Error("failed to register Reconcile job", "schedule", policy.ReconcileSchedule, "error", err)
	}
	if s.jobs.HasLimiter() {
		if _, err := s.cron.AddFunc(policy.LimiterSweepSchedule, s.jobs.SweepRateLimiter); err != nil {
			slog.Error("failed to register SweepRateLimiter job", "schedule", policy.LimiterSweepSchedule, "error", err)
		}
	}

	slog.Info("cron jobs registered", "count", len(s.cron.Entries()))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("cron scheduler started")
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("cron scheduler stopped")
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"evrental-backend/internal/config"
	"evrental-backend/internal/jobs"
	"evrental-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler registers every job on its configured schedule. A run still in
// progress when its next tick fires is skipped.
func NewScheduler(jobRunner *jobs.JobRunner, cfg config.SchedulerConfig) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs(cfg config.SchedulerConfig) error {
	schedule := []struct {
		name string
		when string
		run  func()
	}{
		{jobs.JobExpireHolds, cfg.ExpireHolds, s.jobs.ExpireHolds},
		{jobs.JobReconcilePayments, cfg.ReconcilePayments, s.jobs.ReconcilePayments},
		{jobs.JobIssueMissingContracts, cfg.IssueMissingContracts, s.jobs.IssueMissingContracts},
	}
	for _, j := range schedule {
		if _, err := s.cron.AddFunc(j.when, j.run); err != nil {
			return fmt.Errorf("register %s (%q): %w", j.name, j.when, err)
		}
		logger.Debug("Registered cron job", "job", j.name, "schedule", j.when)
	}
	logger.Info("All cron jobs registered successfully", "count", len(schedule))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Cron scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

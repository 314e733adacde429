package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"evrental-backend/internal/logger"
	"evrental-backend/internal/service"
)

const (
	JobExpireHolds           = "expire-holds"
	JobReconcilePayments     = "reconcile-payments"
	JobIssueMissingContracts = "issue-missing-contracts"
	JobAll                   = "all"
)

// JobRunner coordinates the background sweeps that keep reservations moving
// when no request or payment message arrives.
type JobRunner struct {
	reservations service.ReservationService
	payments     service.PaymentListener
	timeout      time.Duration
	jobs         map[string]func()
}

// NewJobRunner creates a job runner. Each run is bounded by timeout.
func NewJobRunner(reservations service.ReservationService, payments service.PaymentListener, timeout time.Duration) *JobRunner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	jr := &JobRunner{
		reservations: reservations,
		payments:     payments,
		timeout:      timeout,
	}
	jr.jobs = map[string]func(){
		JobExpireHolds:           jr.ExpireHolds,
		JobReconcilePayments:     jr.ReconcilePayments,
		JobIssueMissingContracts: jr.IssueMissingContracts,
	}
	return jr
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) (int, error)) {
	log := logger.With("job", jobName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	start := time.Now()
	log.Debug("Starting job")
	n, err := jobFunc(ctx)
	if err != nil {
		log.Error("Job failed", "processed", n, "error", err, "duration", time.Since(start))
		return
	}
	if n > 0 {
		log.Info("Job completed", "processed", n, "duration", time.Since(start))
		return
	}
	log.Debug("Job completed", "processed", 0, "duration", time.Since(start))
}

// Run executes one named job, or every job for JobAll.
func (jr *JobRunner) Run(name string) error {
	if name == JobAll {
		jr.RunAll()
		return nil
	}
	job, ok := jr.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	job()
	return nil
}

// RunAll runs every job once, expiry first.
func (jr *JobRunner) RunAll() {
	jr.ExpireHolds()
	jr.ReconcilePayments()
	jr.IssueMissingContracts()
}

// Names lists the jobs accepted by Run.
func (jr *JobRunner) Names() []string {
	names := make([]string, 0, len(jr.jobs)+1)
	for name := range jr.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, JobAll)
}

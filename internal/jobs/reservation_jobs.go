package jobs

import "context"

// ExpireHolds moves payment holds past their deadline to EXPIRED and returns
// their vehicles to the pool.
func (jr *JobRunner) ExpireHolds() {
	jr.runWithRecovery(JobExpireHolds, func(ctx context.Context) (int, error) {
		return jr.reservations.ExpireDueHolds(ctx)
	})
}

// ReconcilePayments asks the processor about every live hold so that a lost
// push message and an abandoned callback page still end in a confirmation.
func (jr *JobRunner) ReconcilePayments() {
	jr.runWithRecovery(JobReconcilePayments, func(ctx context.Context) (int, error) {
		return jr.payments.ReconcilePending(ctx)
	})
}

// IssueMissingContracts repairs confirmed reservations whose post-commit
// steps failed. It issues missing contracts and then moves vehicles left
// behind their reservation's state.
func (jr *JobRunner) IssueMissingContracts() {
	jr.runWithRecovery(JobIssueMissingContracts, func(ctx context.Context) (int, error) {
		issued, err := jr.reservations.IssueMissingContracts(ctx)
		if err != nil {
			return issued, err
		}
		repaired, err := jr.reservations.ReconcileVehicles(ctx)
		return issued + repaired, err
	})
}

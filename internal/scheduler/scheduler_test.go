package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrental-backend/internal/config"
	"evrental-backend/internal/jobs"
)

func TestNewScheduler(t *testing.T) {
	jr := jobs.NewJobRunner(nil, nil, time.Second)

	s, err := NewScheduler(jr, config.SchedulerConfig{
		ExpireHolds:           "*/30 * * * * *",
		ReconcilePayments:     "0 */2 * * * *",
		IssueMissingContracts: "0 */10 * * * *",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Entries())
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	jr := jobs.NewJobRunner(nil, nil, time.Second)

	_, err := NewScheduler(jr, config.SchedulerConfig{
		ExpireHolds:           "*/30 * * * * *",
		ReconcilePayments:     "every two minutes",
		IssueMissingContracts: "0 */10 * * * *",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobs.JobReconcilePayments)
}

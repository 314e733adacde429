package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrental-backend/internal/domain"
)

func TestBilledUnits(t *testing.T) {
	tests := []struct {
		d        time.Duration
		unit     time.Duration
		expected int64
	}{
		{3 * time.Hour, time.Hour, 3},
		{3*time.Hour + time.Second, time.Hour, 4},
		{3*time.Hour - time.Minute, time.Hour, 3},
		{90 * time.Minute, 30 * time.Minute, 3},
		{91 * time.Minute, 30 * time.Minute, 4},
		{0, time.Hour, 0},
		{-time.Hour, time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, BilledUnits(tt.d, tt.unit))
		})
	}
}

func TestPreviewCost(t *testing.T) {
	pickup := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	policy := DefaultPricingPolicy()

	t.Run("Whole hours", func(t *testing.T) {
		cost, err := PreviewCost(12000, 500000, pickup, pickup.Add(4*time.Hour), policy)
		require.NoError(t, err)
		assert.Equal(t, int64(4), cost.BilledUnits)
		assert.Equal(t, int64(48000), cost.RentalCostCents)
		assert.Equal(t, int64(50000), cost.DepositCents)
		assert.Equal(t, int64(2400), cost.ServiceFeeCents)
		assert.Equal(t, int64(100400), cost.TotalCents)
	})

	t.Run("Partial hour rounds up", func(t *testing.T) {
		cost, err := PreviewCost(12000, 0, pickup, pickup.Add(3*time.Hour+10*time.Minute), policy)
		require.NoError(t, err)
		assert.Equal(t, int64(4), cost.BilledUnits)
		assert.Equal(t, int64(48000), cost.RentalCostCents)
	})

	t.Run("Half-up rounding of percentages", func(t *testing.T) {
		cost, err := PreviewCost(1010, 15, pickup, pickup.Add(time.Hour), policy)
		require.NoError(t, err)
		// 5% of 1010 = 50.5 -> 51, 10% of 15 = 1.5 -> 2
		assert.Equal(t, int64(51), cost.ServiceFeeCents)
		assert.Equal(t, int64(2), cost.DepositCents)
	})

	t.Run("Service fee minimum", func(t *testing.T) {
		p := policy
		p.ServiceFeeMinCents = 5000
		cost, err := PreviewCost(12000, 0, pickup, pickup.Add(3*time.Hour), p)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), cost.ServiceFeeCents)
		assert.Equal(t, cost.RentalCostCents+cost.DepositCents+cost.ServiceFeeCents, cost.TotalCents)
	})

	t.Run("Half hour billing unit", func(t *testing.T) {
		p := policy
		p.BillingUnit = 30 * time.Minute
		cost, err := PreviewCost(12000, 0, pickup, pickup.Add(3*time.Hour+20*time.Minute), p)
		require.NoError(t, err)
		assert.Equal(t, int64(7), cost.BilledUnits)
		assert.Equal(t, int64(42000), cost.RentalCostCents)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a, err := PreviewCost(9900, 320000, pickup, pickup.Add(7*time.Hour+1), policy)
		require.NoError(t, err)
		b, err := PreviewCost(9900, 320000, pickup, pickup.Add(7*time.Hour+1), policy)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Non-positive hourly rate", func(t *testing.T) {
		for _, rate := range []int64{0, -100} {
			_, err := PreviewCost(rate, 0, pickup, pickup.Add(3*time.Hour), policy)
			assert.ErrorIs(t, err, domain.ErrPricingInvalid)
			assert.True(t, domain.IsValidation(err))
		}
	})

	t.Run("Empty window", func(t *testing.T) {
		_, err := PreviewCost(12000, 0, pickup, pickup, policy)
		assert.ErrorIs(t, err, domain.ErrInvalidTimeWindow)
	})
}

func TestPreviewCostComponentsSum(t *testing.T) {
	pickup := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	policy := PricingPolicy{DepositPercent: 15, ServiceFeePercent: 7, ServiceFeeMinCents: 300, BillingUnit: 15 * time.Minute}

	for rate := int64(1); rate < 50000; rate += 997 {
		for minutes := 180; minutes < 60*48; minutes += 37 {
			cost, err := PreviewCost(rate, rate*31, pickup, pickup.Add(time.Duration(minutes)*time.Minute), policy)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, cost.RentalCostCents, int64(0))
			assert.GreaterOrEqual(t, cost.DepositCents, int64(0))
			assert.GreaterOrEqual(t, cost.ServiceFeeCents, int64(0))
			assert.Equal(t, cost.RentalCostCents+cost.DepositCents+cost.ServiceFeeCents, cost.TotalCents)
		}
	}
}

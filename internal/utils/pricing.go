package utils

import (
	"fmt"
	"time"

	"evrental-backend/internal/domain"
)

// PricingPolicy holds the tunable constants of a cost preview.
type PricingPolicy struct {
	DepositPercent     int64
	ServiceFeePercent  int64
	ServiceFeeMinCents int64
	// BillingUnit is the granularity durations are rounded up to. Rates are
	// quoted per hour, so a 30 minute unit bills half the hourly rate.
	BillingUnit time.Duration
}

// DefaultPricingPolicy bills whole hours with a 10% deposit and 5% service fee.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		DepositPercent:    10,
		ServiceFeePercent: 5,
		BillingUnit:       time.Hour,
	}
}

// BilledUnits returns the number of billing units covering d, rounded up.
func BilledUnits(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	units := int64(d / unit)
	if d%unit > 0 {
		units++
	}
	return units
}

// percentOf returns amount*percent/100 rounded half up.
func percentOf(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}

// PreviewCost computes the binding cost breakdown for a rental. It is pure:
// the same inputs always give the same breakdown.
func PreviewCost(hourlyRateCents, baseCostCents int64, pickup, ret time.Time, policy PricingPolicy) (domain.CostBreakdown, error) {
	if hourlyRateCents <= 0 {
		return domain.CostBreakdown{}, domain.NewValidationError("hourly_rate", fmt.Errorf("%w: hourly rate must be positive, got %d", domain.ErrPricingInvalid, hourlyRateCents))
	}
	if baseCostCents < 0 {
		return domain.CostBreakdown{}, domain.NewValidationError("base_cost", fmt.Errorf("%w: base cost must not be negative", domain.ErrPricingInvalid))
	}
	if policy.DepositPercent < 0 || policy.ServiceFeePercent < 0 || policy.ServiceFeeMinCents < 0 {
		return domain.CostBreakdown{}, domain.NewValidationError("policy", fmt.Errorf("%w: negative policy constant", domain.ErrPricingInvalid))
	}
	if !ret.After(pickup) {
		return domain.CostBreakdown{}, domain.NewValidationError("return_at", domain.ErrInvalidTimeWindow)
	}

	unit := policy.BillingUnit
	if unit <= 0 {
		unit = time.Hour
	}
	units := BilledUnits(ret.Sub(pickup), unit)

	// Scale the hourly rate to the unit on the billed total so sub-hour units
	// stay exact.
	unitMinutes := int64(unit / time.Minute)
	rental := (hourlyRateCents*units*unitMinutes + 30) / 60

	deposit := percentOf(baseCostCents, policy.DepositPercent)

	fee := percentOf(rental, policy.ServiceFeePercent)
	if fee < policy.ServiceFeeMinCents {
		fee = policy.ServiceFeeMinCents
	}

	return domain.CostBreakdown{
		BilledUnits:     units,
		RentalCostCents: rental,
		DepositCents:    deposit,
		ServiceFeeCents: fee,
		TotalCents:      rental + deposit + fee,
	}, nil
}

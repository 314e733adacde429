package domain

import "time"

type ReservationState string

const (
	ReservationStateDraft          ReservationState = "DRAFT"
	ReservationStatePendingPayment ReservationState = "PENDING_PAYMENT"
	ReservationStateConfirmed      ReservationState = "CONFIRMED"
	ReservationStateInProgress     ReservationState = "IN_PROGRESS"
	ReservationStateCompleted      ReservationState = "COMPLETED"
	ReservationStateCancelled      ReservationState = "CANCELLED"
	ReservationStateExpired        ReservationState = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s ReservationState) Terminal() bool {
	switch s {
	case ReservationStateCompleted, ReservationStateCancelled, ReservationStateExpired:
		return true
	}
	return false
}

// Committed reports whether payment has been accepted for the reservation.
func (s ReservationState) Committed() bool {
	switch s {
	case ReservationStateConfirmed, ReservationStateInProgress, ReservationStateCompleted:
		return true
	}
	return false
}

// CostBreakdown holds the binding amounts in cents.
type CostBreakdown struct {
	BilledUnits     int64 `json:"billed_units"`
	RentalCostCents int64 `json:"rental_cost_cents"`
	DepositCents    int64 `json:"deposit_cents"`
	ServiceFeeCents int64 `json:"service_fee_cents"`
	TotalCents      int64 `json:"total_cents"`
}

type Reservation struct {
	ID                string           `json:"id"`
	CustomerID        string           `json:"customer_id"`
	ModelID           string           `json:"model_id"`
	StationID         string           `json:"station_id"`
	VehicleInstanceID string           `json:"vehicle_instance_id,omitempty"`
	PickupAt          time.Time        `json:"pickup_at"`
	ReturnAt          time.Time        `json:"return_at"`
	Cost              CostBreakdown    `json:"cost"`
	State             ReservationState `json:"state"`
	HoldExpiresAt     *time.Time       `json:"hold_expires_at,omitempty"`
	IdempotencyKey    string           `json:"idempotency_key"`
	PaymentSessionID  string           `json:"payment_session_id,omitempty"`
	PaymentURL        string           `json:"payment_url,omitempty"`
	TransactionID     string           `json:"transaction_id,omitempty"`
	CancelReason      string           `json:"cancel_reason,omitempty"`
	CreatedOn         time.Time        `json:"created_on"`
	UpdatedOn         time.Time        `json:"updated_on"`
}

// HoldExpired reports whether a payment hold has lapsed at now.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.HoldExpiresAt != nil && now.After(*r.HoldExpiresAt)
}

// Clone returns a copy that can be mutated without touching r.
func (r *Reservation) Clone() *Reservation {
	c := *r
	if r.HoldExpiresAt != nil {
		t := *r.HoldExpiresAt
		c.HoldExpiresAt = &t
	}
	return &c
}

package service

import (
	"context"
	"time"

	"evrental-backend/internal/domain"
)

// PreviewRequest is the customer's pick of model, station and time window.
type PreviewRequest struct {
	CustomerID string
	ModelID    string
	StationID  string
	PickupAt   time.Time
	ReturnAt   time.Time
}

// ReservationService drives a reservation through its lifecycle. customerID
// arguments scope the call to the owning customer; staff callers pass "".
type ReservationService interface {
	RequestPreview(ctx context.Context, req PreviewRequest) (*domain.Reservation, error)
	RequestHold(ctx context.Context, customerID, reservationID string) (*domain.Reservation, error)
	ConfirmPayment(ctx context.Context, reservationID, transactionID string) (*domain.ConfirmationOutcome, error)
	Cancel(ctx context.Context, customerID, reservationID, reason string) (*domain.Reservation, error)
	Expire(ctx context.Context, reservationID string) (*domain.Reservation, error)
	GetReservation(ctx context.Context, customerID, reservationID string) (*domain.Reservation, *domain.Contract, error)
	StartRental(ctx context.Context, reservationID string) (*domain.Reservation, error)
	CompleteRental(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// ExpireDueHolds expires every PENDING_PAYMENT hold whose grace period has
	// lapsed and returns how many were expired.
	ExpireDueHolds(ctx context.Context) (int, error)
	// IssueMissingContracts issues contracts for confirmed reservations that
	// lack one and returns how many were issued.
	IssueMissingContracts(ctx context.Context) (int, error)
	// ReconcileVehicles moves the vehicles of committed reservations to the
	// status their reservation implies and returns how many were repaired.
	ReconcileVehicles(ctx context.Context) (int, error)
}

// PaymentListener accepts unverified payment signals from any channel.
type PaymentListener interface {
	OnPaymentSignal(ctx context.Context, signal domain.PaymentSignal) (*domain.ConfirmationOutcome, error)
	// ReconcilePending re-verifies open holds with the processor and returns
	// how many were confirmed.
	ReconcilePending(ctx context.Context) (int, error)
}

type ContractIssuer interface {
	Issue(ctx context.Context, r *domain.Reservation) (*domain.Contract, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.ReservationEvent)
}

// EventSink is one delivery target a Notifier fans events out to.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, event domain.ReservationEvent) error
}

type NotificationService interface {
	GetNotifications(ctx context.Context, customerID string, page, pageSize int32) ([]domain.Notification, int32, error)
}

type EmailService interface {
	SendConfirmation(ctx context.Context, customer *domain.Customer, r *domain.Reservation, c *domain.Contract) error
}

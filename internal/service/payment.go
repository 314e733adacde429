package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/payment"
	"evrental-backend/internal/repository"
)

type paymentListener struct {
	reservations repository.ReservationRepository
	orchestrator ReservationService
	gateway      payment.Gateway
	retry        payment.RetryPolicy
	batchSize    int
	now          func() time.Time
}

func NewPaymentListener(
	reservations repository.ReservationRepository,
	orchestrator ReservationService,
	gateway payment.Gateway,
	retry payment.RetryPolicy,
	batchSize int,
	now func() time.Time,
) PaymentListener {
	if now == nil {
		now = time.Now
	}
	return &paymentListener{
		reservations: reservations,
		orchestrator: orchestrator,
		gateway:      gateway,
		retry:        retry,
		batchSize:    batchSize,
		now:          now,
	}
}

// OnPaymentSignal verifies signal with the processor before confirming. Push,
// callback and reconciliation share this path, so they apply the same checks.
func (l *paymentListener) OnPaymentSignal(ctx context.Context, signal domain.PaymentSignal) (*domain.ConfirmationOutcome, error) {
	logger.EnterMethod("paymentListener.OnPaymentSignal", "reservationID", signal.ReservationID, "channel", signal.Channel)

	r, err := l.reservations.GetByID(ctx, signal.ReservationID)
	if err != nil {
		logger.ExitMethodWithError("paymentListener.OnPaymentSignal", err, "reservationID", signal.ReservationID)
		return nil, err
	}

	switch {
	case r.State.Committed():
		// Already paid; the orchestrator hands back the existing contract.
		return l.orchestrator.ConfirmPayment(ctx, r.ID, r.TransactionID)
	case r.State == domain.ReservationStateExpired:
		return nil, domain.ErrHoldExpired
	case r.State == domain.ReservationStateCancelled:
		return nil, domain.ErrReservationCancelled
	case r.State != domain.ReservationStatePendingPayment || r.PaymentSessionID == "":
		logger.Warn("Payment signal for reservation without a hold", "reservationID", r.ID, "state", r.State, "channel", signal.Channel)
		return nil, fmt.Errorf("%w: reservation %s has no open payment session", domain.ErrUnverifiedPaymentSignal, r.ID)
	case r.HoldExpired(l.now()):
		if _, err := l.orchestrator.Expire(ctx, r.ID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, err
		}
		return nil, domain.ErrHoldExpired
	}

	rec, err := payment.VerifyWithRetry(ctx, l.gateway, r.PaymentSessionID, l.retry)
	if err != nil {
		if errors.Is(err, domain.ErrVerificationUnavailable) {
			logger.ExitMethodWithError("paymentListener.OnPaymentSignal", err, "reservationID", r.ID)
			return nil, err
		}
		logger.Warn("Payment signal dropped", "reservationID", r.ID, "channel", signal.Channel, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUnverifiedPaymentSignal, err)
	}
	if err := checkRecord(r, rec, signal); err != nil {
		logger.Warn("Payment signal dropped", "reservationID", r.ID, "channel", signal.Channel, "error", err)
		return nil, err
	}

	outcome, err := l.orchestrator.ConfirmPayment(ctx, r.ID, rec.TransactionID)
	if err != nil {
		logger.ExitMethodWithError("paymentListener.OnPaymentSignal", err, "reservationID", r.ID)
		return nil, err
	}
	logger.ExitMethod("paymentListener.OnPaymentSignal", "reservationID", r.ID, "duplicate", outcome.Duplicate)
	return outcome, nil
}

func checkRecord(r *domain.Reservation, rec *domain.PaymentRecord, signal domain.PaymentSignal) error {
	if !rec.Paid() {
		return fmt.Errorf("%w: order %s payment %s", domain.ErrUnverifiedPaymentSignal, rec.OrderStatus, rec.PaymentStatus)
	}
	if signal.TransactionID != "" && signal.TransactionID != rec.TransactionID {
		return fmt.Errorf("%w: transaction id mismatch", domain.ErrUnverifiedPaymentSignal)
	}
	if rec.AmountCents != r.Cost.TotalCents {
		return fmt.Errorf("%w: paid %d, expected %d", domain.ErrUnverifiedPaymentSignal, rec.AmountCents, r.Cost.TotalCents)
	}
	return nil
}

func (l *paymentListener) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := l.reservations.ListByState(ctx, domain.ReservationStatePendingPayment, l.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending holds: %w", err)
	}

	confirmed := 0
	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		outcome, err := l.OnPaymentSignal(ctx, domain.PaymentSignal{
			ReservationID: r.ID,
			Channel:       domain.PaymentChannelReconcile,
		})
		switch {
		case err == nil && !outcome.Duplicate:
			confirmed++
		case err == nil:
		case errors.Is(err, domain.ErrUnverifiedPaymentSignal), errors.Is(err, domain.ErrHoldExpired):
			// Not paid yet, or lapsed; nothing to reconcile.
		default:
			logger.Warn("Reconciliation failed", "reservationID", r.ID, "error", err)
		}
	}
	return confirmed, nil
}

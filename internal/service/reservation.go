package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/payment"
	"evrental-backend/internal/repository"
	"evrental-backend/internal/utils"
)

// ReservationPolicy holds the tunables of the reservation lifecycle.
type ReservationPolicy struct {
	MinDuration    time.Duration
	HoldGrace      time.Duration
	Pricing        utils.PricingPolicy
	Currency       string
	ReturnURL      string
	SweepBatchSize int
	// Now is the clock every guard is evaluated against.
	Now func() time.Time
}

func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{
		MinDuration:    3 * time.Hour,
		HoldGrace:      15 * time.Minute,
		Pricing:        utils.DefaultPricingPolicy(),
		Currency:       "VND",
		SweepBatchSize: 100,
		Now:            time.Now,
	}
}

type reservationService struct {
	reservations repository.ReservationRepository
	catalog      repository.CatalogRepository
	vehicles     repository.VehicleRepository
	contracts    repository.ContractRepository
	availability *AvailabilityIndex
	gateway      payment.Gateway
	issuer       ContractIssuer
	notifier     Notifier
	policy       ReservationPolicy
	locks        *keyedMutex
}

func NewReservationService(
	store repository.Store,
	availability *AvailabilityIndex,
	gateway payment.Gateway,
	issuer ContractIssuer,
	notifier Notifier,
	policy ReservationPolicy,
) ReservationService {
	if policy.Now == nil {
		policy.Now = time.Now
	}
	if policy.SweepBatchSize <= 0 {
		policy.SweepBatchSize = 100
	}
	return &reservationService{
		reservations: store.Reservations(),
		catalog:      store.Catalog(),
		vehicles:     store.Vehicles(),
		contracts:    store.Contracts(),
		availability: availability,
		gateway:      gateway,
		issuer:       issuer,
		notifier:     notifier,
		policy:       policy,
		locks:        newKeyedMutex(),
	}
}

func (s *reservationService) now() time.Time {
	return s.policy.Now().UTC()
}

func (s *reservationService) RequestPreview(ctx context.Context, req PreviewRequest) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.RequestPreview", "customerID", req.CustomerID, "modelID", req.ModelID, "stationID", req.StationID)

	model, err := s.catalog.GetModel(ctx, req.ModelID)
	if err != nil {
		logger.ExitMethodWithError("reservationService.RequestPreview", err)
		return nil, err
	}
	station, err := s.catalog.GetStation(ctx, req.StationID)
	if err != nil {
		logger.ExitMethodWithError("reservationService.RequestPreview", err)
		return nil, err
	}
	if err := s.validateWindow(station, req.PickupAt, req.ReturnAt); err != nil {
		logger.Info("Preview rejected", "customerID", req.CustomerID, "error", err)
		return nil, err
	}

	units, err := s.vehicles.CountByModel(ctx, model.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count fleet units: %w", err)
	}
	if units == 0 {
		suggestions, _ := s.availability.Suggest(ctx, model.ID, station.ID)
		return nil, &domain.NoVehicleAvailableError{ModelID: model.ID, StationID: station.ID, Suggestions: suggestions}
	}

	cost, err := utils.PreviewCost(model.HourlyRateCents, model.BaseCostCents, req.PickupAt, req.ReturnAt, s.policy.Pricing)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := uuid.NewString()
	r := &domain.Reservation{
		ID:             id,
		CustomerID:     req.CustomerID,
		ModelID:        model.ID,
		StationID:      station.ID,
		PickupAt:       req.PickupAt.UTC(),
		ReturnAt:       req.ReturnAt.UTC(),
		Cost:           cost,
		State:          domain.ReservationStateDraft,
		IdempotencyKey: utils.IdempotencyKey(id),
		CreatedOn:      now,
		UpdatedOn:      now,
	}
	if err := s.reservations.Create(ctx, r); err != nil {
		logger.ExitMethodWithError("reservationService.RequestPreview", err)
		return nil, err
	}

	logger.ExitMethod("reservationService.RequestPreview", "reservationID", r.ID, "total", r.Cost.TotalCents)
	return r, nil
}

// validateWindow runs the request guards. Failures are ValidationErrors and
// never touch persisted state.
func (s *reservationService) validateWindow(station *domain.Station, pickup, ret time.Time) error {
	if !ret.After(pickup) {
		return domain.NewValidationError("return_at", domain.ErrInvalidTimeWindow)
	}
	if pickup.Before(s.now()) {
		return domain.NewValidationError("pickup_at", domain.ErrPickupInPast)
	}
	return s.validateBooking(station, pickup, ret)
}

// validateBooking checks the minimum duration and the station hours. It is
// the part of validateWindow a paid hold must still pass at confirmation,
// when pickup may already be close or past.
func (s *reservationService) validateBooking(station *domain.Station, pickup, ret time.Time) error {
	if ret.Sub(pickup) < s.policy.MinDuration {
		return domain.NewValidationError("return_at", fmt.Errorf("%w: minimum is %s", domain.ErrDurationTooShort, s.policy.MinDuration))
	}

	for _, check := range []struct {
		field string
		at    time.Time
	}{
		{"pickup_at", pickup},
		{"return_at", ret},
	} {
		open, err := station.IsOpenAt(check.at)
		if err != nil {
			return fmt.Errorf("station %s: %w", station.ID, err)
		}
		if !open {
			return domain.NewValidationError(check.field, fmt.Errorf("%w: station %s is open %s", domain.ErrOutsideOperatingHours, station.ID, station.HoursLabel()))
		}
	}
	return nil
}

func (s *reservationService) load(ctx context.Context, customerID, reservationID string) (*domain.Reservation, error) {
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if customerID != "" && r.CustomerID != customerID {
		return nil, domain.ErrForbidden
	}
	return r, nil
}

func (s *reservationService) RequestHold(ctx context.Context, customerID, reservationID string) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.RequestHold", "reservationID", reservationID)
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	r, err := s.load(ctx, customerID, reservationID)
	if err != nil {
		return nil, err
	}

	switch r.State {
	case domain.ReservationStateDraft:
	case domain.ReservationStatePendingPayment:
		if r.HoldExpired(s.now()) {
			if _, err := s.expireLocked(ctx, r); err != nil {
				return nil, err
			}
			return nil, domain.ErrHoldExpired
		}
		logger.ExitMethod("reservationService.RequestHold", "reservationID", r.ID, "existing", true)
		return r, nil
	case domain.ReservationStateExpired:
		return nil, domain.ErrHoldExpired
	case domain.ReservationStateCancelled:
		return nil, domain.ErrReservationCancelled
	default:
		return nil, fmt.Errorf("%w: cannot hold a %s reservation", domain.ErrInvalidTransition, r.State)
	}

	station, err := s.catalog.GetStation(ctx, r.StationID)
	if err != nil {
		return nil, err
	}
	if err := s.validateWindow(station, r.PickupAt, r.ReturnAt); err != nil {
		logger.Info("Hold rejected", "reservationID", r.ID, "error", err)
		return nil, err
	}

	vehicleID, err := s.availability.TryClaim(ctx, r.ModelID, r.StationID)
	if err != nil {
		logger.Info("Hold could not claim a vehicle", "reservationID", r.ID, "error", err)
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.policy.HoldGrace)
	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		ReservationID:  r.ID,
		IdempotencyKey: r.IdempotencyKey,
		AmountCents:    r.Cost.TotalCents,
		Currency:       s.policy.Currency,
		Description:    fmt.Sprintf("Rental of %s from %s", r.ModelID, r.StationID),
		ReturnURL:      s.policy.ReturnURL,
		ExpiresAtUnix:  expiresAt.Unix(),
	})
	if err != nil {
		s.releaseVehicle(ctx, vehicleID)
		logger.ExitMethodWithError("reservationService.RequestHold", err, "reservationID", r.ID)
		return nil, fmt.Errorf("failed to open payment session: %w", err)
	}

	next := r.Clone()
	next.State = domain.ReservationStatePendingPayment
	next.VehicleInstanceID = vehicleID
	next.HoldExpiresAt = &expiresAt
	next.PaymentSessionID = session.SessionID
	next.PaymentURL = session.PaymentURL
	next.UpdatedOn = now

	ok, err := s.reservations.CompareAndSwap(ctx, next, domain.ReservationStateDraft)
	if err != nil || !ok {
		s.releaseVehicle(ctx, vehicleID)
		if err != nil {
			return nil, err
		}
		return s.afterLostRace(ctx, r.ID)
	}

	s.notifier.Notify(ctx, domain.ReservationEvent{Type: domain.EventReservationHeld, Reservation: next, OccurredAt: now})
	logger.ExitMethod("reservationService.RequestHold", "reservationID", next.ID, "vehicleID", vehicleID, "holdExpiresAt", expiresAt)
	return next, nil
}

// afterLostRace reports the state another process moved the reservation to.
func (s *reservationService) afterLostRace(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	current, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if current.State == domain.ReservationStatePendingPayment {
		return current, nil
	}
	return nil, fmt.Errorf("%w: reservation is now %s", domain.ErrInvalidTransition, current.State)
}

func (s *reservationService) ConfirmPayment(ctx context.Context, reservationID, transactionID string) (*domain.ConfirmationOutcome, error) {
	logger.EnterMethod("reservationService.ConfirmPayment", "reservationID", reservationID, "transactionID", transactionID)
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	// A lost CAS means another process moved the reservation; the second pass
	// reports whatever it moved to.
	for attempt := 0; attempt < 2; attempt++ {
		r, err := s.reservations.GetByID(ctx, reservationID)
		if err != nil {
			return nil, err
		}

		switch r.State {
		case domain.ReservationStateConfirmed, domain.ReservationStateInProgress, domain.ReservationStateCompleted:
			contract, err := s.issuer.Issue(ctx, r)
			if err != nil {
				return nil, err
			}
			logger.Info("Duplicate payment confirmation", "reservationID", r.ID, "contractID", contract.ID)
			return &domain.ConfirmationOutcome{Reservation: r, Contract: contract, Duplicate: true}, nil
		case domain.ReservationStateExpired:
			return nil, domain.ErrHoldExpired
		case domain.ReservationStateCancelled:
			return nil, domain.ErrReservationCancelled
		case domain.ReservationStateDraft:
			return nil, fmt.Errorf("%w: reservation has no payment hold", domain.ErrInvalidTransition)
		}

		now := s.now()
		if r.HoldExpired(now) {
			if _, err := s.expireLocked(ctx, r); err != nil {
				return nil, err
			}
			logger.Info("Late payment confirmation for expired hold", "reservationID", r.ID)
			return nil, domain.ErrHoldExpired
		}

		station, err := s.catalog.GetStation(ctx, r.StationID)
		if err != nil {
			return nil, err
		}
		if err := s.validateBooking(station, r.PickupAt, r.ReturnAt); err != nil {
			logger.Warn("Confirmation rejected", "reservationID", r.ID, "error", err)
			return nil, err
		}

		next := r.Clone()
		next.State = domain.ReservationStateConfirmed
		next.TransactionID = transactionID
		next.UpdatedOn = now
		ok, err := s.reservations.CompareAndSwap(ctx, next, domain.ReservationStatePendingPayment)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if err := s.availability.MarkPendingCheckin(ctx, next.VehicleInstanceID); err != nil {
			// ReconcileVehicles replays the flip.
			logger.Error("Failed to mark vehicle pending check-in", "vehicleID", next.VehicleInstanceID, "error", err)
		}

		outcome := &domain.ConfirmationOutcome{Reservation: next}
		contract, err := s.issuer.Issue(ctx, next)
		if err != nil {
			// IssueMissingContracts picks this reservation up later.
			logger.Error("Contract issuance failed after confirmation", "reservationID", next.ID, "error", err)
		} else {
			outcome.Contract = contract
		}

		s.notifier.Notify(ctx, domain.ReservationEvent{Type: domain.EventReservationConfirmed, Reservation: next, Contract: outcome.Contract, OccurredAt: now})
		logger.ExitMethod("reservationService.ConfirmPayment", "reservationID", next.ID)
		return outcome, nil
	}
	return nil, fmt.Errorf("%w: reservation %s changed concurrently", domain.ErrInvalidTransition, reservationID)
}

func (s *reservationService) Cancel(ctx context.Context, customerID, reservationID, reason string) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.Cancel", "reservationID", reservationID)
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	r, err := s.load(ctx, customerID, reservationID)
	if err != nil {
		return nil, err
	}
	switch r.State {
	case domain.ReservationStateCancelled:
		return r, nil
	case domain.ReservationStateDraft, domain.ReservationStatePendingPayment:
	default:
		return nil, fmt.Errorf("%w: cannot cancel a %s reservation", domain.ErrInvalidTransition, r.State)
	}

	now := s.now()
	next := r.Clone()
	next.State = domain.ReservationStateCancelled
	next.CancelReason = reason
	next.HoldExpiresAt = nil
	next.UpdatedOn = now
	ok, err := s.reservations.CompareAndSwap(ctx, next, r.State)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.reservations.GetByID(ctx, reservationID)
		if err != nil {
			return nil, err
		}
		if current.State == domain.ReservationStateCancelled {
			return current, nil
		}
		return nil, fmt.Errorf("%w: reservation is now %s", domain.ErrInvalidTransition, current.State)
	}

	if r.State == domain.ReservationStatePendingPayment {
		s.releaseVehicle(ctx, r.VehicleInstanceID)
	}
	s.notifier.Notify(ctx, domain.ReservationEvent{Type: domain.EventReservationCancelled, Reservation: next, OccurredAt: now})
	logger.ExitMethod("reservationService.Cancel", "reservationID", next.ID)
	return next, nil
}

func (s *reservationService) Expire(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch {
	case r.State == domain.ReservationStateExpired:
		return r, nil
	case r.State != domain.ReservationStatePendingPayment:
		return nil, fmt.Errorf("%w: cannot expire a %s reservation", domain.ErrInvalidTransition, r.State)
	case !r.HoldExpired(s.now()):
		return nil, fmt.Errorf("%w: hold runs until %s", domain.ErrInvalidTransition, r.HoldExpiresAt.Format(time.RFC3339))
	}
	return s.expireLocked(ctx, r)
}

// expireLocked moves a lapsed hold to EXPIRED and frees its vehicle. The
// caller holds the reservation lock.
func (s *reservationService) expireLocked(ctx context.Context, r *domain.Reservation) (*domain.Reservation, error) {
	now := s.now()
	next := r.Clone()
	next.State = domain.ReservationStateExpired
	next.UpdatedOn = now
	ok, err := s.reservations.CompareAndSwap(ctx, next, domain.ReservationStatePendingPayment)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.reservations.GetByID(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if current.State == domain.ReservationStateExpired {
			return current, nil
		}
		return nil, fmt.Errorf("%w: reservation is now %s", domain.ErrInvalidTransition, current.State)
	}

	s.releaseVehicle(ctx, r.VehicleInstanceID)
	s.notifier.Notify(ctx, domain.ReservationEvent{Type: domain.EventReservationExpired, Reservation: next, OccurredAt: now})
	logger.Info("Reservation hold expired", "reservationID", r.ID, "vehicleID", r.VehicleInstanceID)
	return next, nil
}

func (s *reservationService) releaseVehicle(ctx context.Context, vehicleID string) {
	if err := s.availability.Release(ctx, vehicleID); err != nil {
		logger.Error("Failed to release vehicle", "vehicleID", vehicleID, "error", err)
	}
}

func (s *reservationService) GetReservation(ctx context.Context, customerID, reservationID string) (*domain.Reservation, *domain.Contract, error) {
	r, err := s.load(ctx, customerID, reservationID)
	if err != nil {
		return nil, nil, err
	}
	if !r.State.Committed() {
		return r, nil, nil
	}
	contract, err := s.contracts.GetByReservationID(ctx, r.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	return r, contract, nil
}

func (s *reservationService) StartRental(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.advance(ctx, reservationID, domain.ReservationStateConfirmed, domain.ReservationStateInProgress,
		domain.EventReservationStarted, s.availability.MarkRented)
}

func (s *reservationService) CompleteRental(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.advance(ctx, reservationID, domain.ReservationStateInProgress, domain.ReservationStateCompleted,
		domain.EventReservationCompleted, s.availability.ReturnToPool)
}

// advance performs a staff-driven transition. The vehicle moves first so a
// failed move leaves the reservation where it was; a retry finds the vehicle
// already moved and only swaps the state.
func (s *reservationService) advance(
	ctx context.Context,
	reservationID string,
	from, to domain.ReservationState,
	event domain.EventType,
	moveVehicle func(ctx context.Context, vehicleID string) error,
) (*domain.Reservation, error) {
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.State == to {
		return r, nil
	}
	if r.State != from {
		return nil, fmt.Errorf("%w: %s reservation cannot become %s", domain.ErrInvalidTransition, r.State, to)
	}

	if err := moveVehicle(ctx, r.VehicleInstanceID); err != nil {
		logger.Error("Failed to move vehicle", "reservationID", r.ID, "vehicleID", r.VehicleInstanceID, "to", to, "error", err)
		return nil, err
	}

	now := s.now()
	next := r.Clone()
	next.State = to
	next.UpdatedOn = now
	ok, err := s.reservations.CompareAndSwap(ctx, next, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: reservation %s changed concurrently", domain.ErrInvalidTransition, reservationID)
	}
	s.notifier.Notify(ctx, domain.ReservationEvent{Type: event, Reservation: next, OccurredAt: now})
	return next, nil
}

func (s *reservationService) ExpireDueHolds(ctx context.Context) (int, error) {
	due, err := s.reservations.ListExpiredHolds(ctx, s.now(), s.policy.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired holds: %w", err)
	}
	expired := 0
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		res, err := s.Expire(ctx, r.ID)
		if err != nil {
			// Confirmation or cancellation won the race.
			logger.Info("Skipped expiring hold", "reservationID", r.ID, "error", err)
			continue
		}
		if res.State == domain.ReservationStateExpired {
			expired++
		}
	}
	return expired, nil
}

func (s *reservationService) IssueMissingContracts(ctx context.Context) (int, error) {
	pending, err := s.reservations.ListConfirmedWithoutContract(ctx, s.policy.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list reservations without contract: %w", err)
	}
	issued := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return issued, err
		}
		if _, err := s.issuer.Issue(ctx, &pending[i]); err != nil {
			logger.Error("Contract repair failed", "reservationID", pending[i].ID, "error", err)
			continue
		}
		issued++
	}
	return issued, nil
}

// vehicleTargets is the instance status each committed state implies.
var vehicleTargets = []struct {
	state  domain.ReservationState
	status domain.VehicleStatus
}{
	{domain.ReservationStateConfirmed, domain.VehicleStatusPendingCheckin},
	{domain.ReservationStateInProgress, domain.VehicleStatusRented},
}

func (s *reservationService) ReconcileVehicles(ctx context.Context) (int, error) {
	repaired := 0
	for _, target := range vehicleTargets {
		committed, err := s.reservations.ListByState(ctx, target.state, s.policy.SweepBatchSize)
		if err != nil {
			return repaired, fmt.Errorf("failed to list %s reservations: %w", target.state, err)
		}
		for _, r := range committed {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			if r.VehicleInstanceID == "" {
				continue
			}
			v, err := s.vehicles.GetByID(ctx, r.VehicleInstanceID)
			if err != nil {
				logger.Error("Vehicle lookup failed", "reservationID", r.ID, "vehicleID", r.VehicleInstanceID, "error", err)
				continue
			}
			if v.Status == target.status {
				continue
			}
			if err := s.repairVehicle(ctx, r.ID, target.status); err != nil {
				logger.Error("Vehicle repair failed", "reservationID", r.ID, "vehicleID", r.VehicleInstanceID, "error", err)
				continue
			}
			logger.Info("Vehicle status repaired", "reservationID", r.ID, "vehicleID", r.VehicleInstanceID, "from", v.Status, "to", target.status)
			repaired++
		}
	}
	return repaired, nil
}

// repairVehicle re-reads the reservation under its lock so a concurrent
// transition is not undone.
func (s *reservationService) repairVehicle(ctx context.Context, reservationID string, status domain.VehicleStatus) error {
	unlock := s.locks.Lock(reservationID)
	defer unlock()

	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	switch {
	case r.State == domain.ReservationStateConfirmed && status == domain.VehicleStatusPendingCheckin:
		return s.availability.MarkPendingCheckin(ctx, r.VehicleInstanceID)
	case r.State == domain.ReservationStateInProgress && status == domain.VehicleStatusRented:
		return s.availability.MarkRented(ctx, r.VehicleInstanceID)
	}
	return fmt.Errorf("%w: reservation is now %s", domain.ErrInvalidTransition, r.State)
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

const reservationColumns = `id, customer_id, model_id, station_id, vehicle_instance_id, pickup_at, return_at,
	billed_units, rental_cost_cents, deposit_cents, service_fee_cents, total_cents, state, hold_expires_at,
	idempotency_key, payment_session_id, payment_url, transaction_id, cancel_reason, created_on, updated_on`

type reservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var holdExpiresAt sql.NullTime
	err := row.Scan(&res.ID, &res.CustomerID, &res.ModelID, &res.StationID, &res.VehicleInstanceID, &res.PickupAt, &res.ReturnAt,
		&res.Cost.BilledUnits, &res.Cost.RentalCostCents, &res.Cost.DepositCents, &res.Cost.ServiceFeeCents, &res.Cost.TotalCents,
		&res.State, &holdExpiresAt, &res.IdempotencyKey, &res.PaymentSessionID, &res.PaymentURL, &res.TransactionID,
		&res.CancelReason, &res.CreatedOn, &res.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time
		res.HoldExpiresAt = &t
	}
	return res, nil
}

func holdExpiry(res *domain.Reservation) sql.NullTime {
	if res.HoldExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *res.HoldExpiresAt, Valid: true}
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	logger.EnterMethod("reservationRepository.Create", "reservationID", res.ID, "customerID", res.CustomerID)

	now := time.Now().UTC()
	if res.CreatedOn.IsZero() {
		res.CreatedOn = now
	}
	res.UpdatedOn = now

	query := `INSERT INTO reservations (` + reservationColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	logger.DatabaseCall("INSERT", "reservations", "reservationID", res.ID)
	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.CustomerID, res.ModelID, res.StationID, res.VehicleInstanceID, res.PickupAt, res.ReturnAt,
		res.Cost.BilledUnits, res.Cost.RentalCostCents, res.Cost.DepositCents, res.Cost.ServiceFeeCents, res.Cost.TotalCents,
		res.State, holdExpiry(res), res.IdempotencyKey, res.PaymentSessionID, res.PaymentURL, res.TransactionID,
		res.CancelReason, res.CreatedOn, res.UpdatedOn)
	logger.DatabaseResult("INSERT", 1, err, "reservationID", res.ID)

	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("reservation %s already exists: %w", res.ID, err)
		}
		logger.ExitMethodWithError("reservationRepository.Create", err, "reservationID", res.ID)
		return err
	}
	logger.ExitMethod("reservationRepository.Create", "reservationID", res.ID)
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "reservation", id)
	}
	return res, nil
}

// CompareAndSwap writes every mutable column guarded by the expected state.
func (r *reservationRepository) CompareAndSwap(ctx context.Context, res *domain.Reservation, expected domain.ReservationState) (bool, error) {
	query := `UPDATE reservations SET vehicle_instance_id = $1, billed_units = $2, rental_cost_cents = $3, deposit_cents = $4,
	          service_fee_cents = $5, total_cents = $6, state = $7, hold_expires_at = $8, payment_session_id = $9,
	          payment_url = $10, transaction_id = $11, cancel_reason = $12, updated_on = $13
	          WHERE id = $14 AND state = $15`
	logger.DatabaseCall("UPDATE", "reservations", "reservationID", res.ID, "expected", expected, "next", res.State)

	res.UpdatedOn = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		res.VehicleInstanceID, res.Cost.BilledUnits, res.Cost.RentalCostCents, res.Cost.DepositCents,
		res.Cost.ServiceFeeCents, res.Cost.TotalCents, res.State, holdExpiry(res), res.PaymentSessionID,
		res.PaymentURL, res.TransactionID, res.CancelReason, res.UpdatedOn,
		res.ID, expected)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "reservationID", res.ID)
		return false, err
	}
	n, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "reservationID", res.ID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *reservationRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE state = $1 AND hold_expires_at < $2 ORDER BY hold_expires_at LIMIT $3`
	return r.query(ctx, query, domain.ReservationStatePendingPayment, now, limitOrAll(limit))
}

func (r *reservationRepository) ListByState(ctx context.Context, state domain.ReservationState, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE state = $1 ORDER BY created_on LIMIT $2`
	return r.query(ctx, query, state, limitOrAll(limit))
}

func (r *reservationRepository) ListConfirmedWithoutContract(ctx context.Context, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations r
	          WHERE r.state = $1 AND NOT EXISTS (SELECT 1 FROM contracts c WHERE c.reservation_id = r.id)
	          ORDER BY r.updated_on LIMIT $2`
	return r.query(ctx, query, domain.ReservationStateConfirmed, limitOrAll(limit))
}

func (r *reservationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// limitOrAll turns a non-positive limit into one postgres accepts as "no limit".
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

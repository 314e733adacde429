package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

type contractRepository struct {
	db *sql.DB
}

func NewContractRepository(db *sql.DB) repository.ContractRepository {
	return &contractRepository{db: db}
}

// CreateIfAbsent inserts c and falls back to reading the existing row when the
// reservation already has a contract. The read is a separate statement: a
// same-statement CTE would not see a row committed by a concurrent insert.
func (r *contractRepository) CreateIfAbsent(ctx context.Context, c *domain.Contract) (*domain.Contract, bool, error) {
	logger.EnterMethod("contractRepository.CreateIfAbsent", "reservationID", c.ReservationID)

	if c.CreatedOn.IsZero() {
		c.CreatedOn = time.Now().UTC()
	}
	query := `INSERT INTO contracts (id, reservation_id, idempotency_key, document_key, document_url, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT DO NOTHING
	          RETURNING id`
	logger.DatabaseCall("INSERT", "contracts", "reservationID", c.ReservationID)

	var id string
	err := r.db.QueryRowContext(ctx, query, c.ID, c.ReservationID, c.IdempotencyKey, c.DocumentKey, c.DocumentURL, c.CreatedOn).Scan(&id)
	switch {
	case err == nil:
		logger.DatabaseResult("INSERT", 1, nil, "contractID", id)
		logger.ExitMethod("contractRepository.CreateIfAbsent", "contractID", id, "created", true)
		stored := *c
		return &stored, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		logger.DatabaseResult("INSERT", 0, err, "reservationID", c.ReservationID)
		logger.ExitMethodWithError("contractRepository.CreateIfAbsent", err, "reservationID", c.ReservationID)
		return nil, false, err
	}
	logger.DatabaseResult("INSERT", 0, nil, "reservationID", c.ReservationID, "conflict", true)

	existing, err := r.GetByReservationID(ctx, c.ReservationID)
	if err != nil {
		logger.ExitMethodWithError("contractRepository.CreateIfAbsent", err, "reservationID", c.ReservationID)
		return nil, false, err
	}
	logger.ExitMethod("contractRepository.CreateIfAbsent", "contractID", existing.ID, "created", false)
	return existing, false, nil
}

func (r *contractRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Contract, error) {
	c := &domain.Contract{}
	query := `SELECT id, reservation_id, idempotency_key, document_key, document_url, created_on FROM contracts WHERE reservation_id = $1`
	err := r.db.QueryRowContext(ctx, query, reservationID).Scan(&c.ID, &c.ReservationID, &c.IdempotencyKey, &c.DocumentKey, &c.DocumentURL, &c.CreatedOn)
	if err != nil {
		return nil, notFound(err, "contract for reservation", reservationID)
	}
	return c, nil
}

func (r *contractRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Contract, error) {
	c := &domain.Contract{}
	query := `SELECT id, reservation_id, idempotency_key, document_key, document_url, created_on FROM contracts WHERE idempotency_key = $1`
	err := r.db.QueryRowContext(ctx, query, key).Scan(&c.ID, &c.ReservationID, &c.IdempotencyKey, &c.DocumentKey, &c.DocumentURL, &c.CreatedOn)
	if err != nil {
		return nil, notFound(err, "contract", key)
	}
	return c, nil
}

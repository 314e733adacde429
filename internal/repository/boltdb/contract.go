package boltdb

import (
	"context"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

// contractRepository keys contracts by reservation id, with a secondary index
// from idempotency key to reservation id.
type contractRepository struct {
	db *bolt.DB
}

// CreateIfAbsent is a get-or-put in one write transaction. A retry or a
// concurrent second issuer gets the stored contract back with created=false.
func (r *contractRepository) CreateIfAbsent(ctx context.Context, c *domain.Contract) (*domain.Contract, bool, error) {
	logger.DatabaseCall("CREATE_IF_ABSENT", "contracts", "reservationID", c.ReservationID)
	var result domain.Contract
	created := false

	err := r.db.Update(func(tx *bolt.Tx) error {
		err := get(tx, bucketContracts, c.ReservationID, &result)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if c.CreatedOn.IsZero() {
			c.CreatedOn = time.Now().UTC()
		}
		if err := put(tx, bucketContracts, c.ReservationID, c); err != nil {
			return err
		}
		if err := tx.Bucket(bucketContractKeys).Put([]byte(c.IdempotencyKey), []byte(c.ReservationID)); err != nil {
			return err
		}
		result = *c
		created = true
		return nil
	})
	var rows int64
	if created {
		rows = 1
	}
	logger.DatabaseResult("CREATE_IF_ABSENT", rows, err, "reservationID", c.ReservationID)
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

func (r *contractRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Contract, error) {
	var c domain.Contract
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketContracts, reservationID, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contractRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Contract, error) {
	var c domain.Contract
	err := r.db.View(func(tx *bolt.Tx) error {
		reservationID := tx.Bucket(bucketContractKeys).Get([]byte(key))
		if reservationID == nil {
			return domain.ErrNotFound
		}
		return get(tx, bucketContracts, string(reservationID), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

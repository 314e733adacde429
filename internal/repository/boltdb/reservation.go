package boltdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

type reservationRepository struct {
	db *bolt.DB
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketReservations).Get([]byte(res.ID)) != nil {
			return fmt.Errorf("reservation %s already exists", res.ID)
		}
		now := time.Now().UTC()
		if res.CreatedOn.IsZero() {
			res.CreatedOn = now
		}
		res.UpdatedOn = now
		return put(tx, bucketReservations, res.ID, res)
	})
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketReservations, id, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) CompareAndSwap(ctx context.Context, res *domain.Reservation, expected domain.ReservationState) (bool, error) {
	logger.DatabaseCall("CAS", "reservations", "reservationID", res.ID, "expected", expected, "next", res.State)
	swapped := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		var stored domain.Reservation
		if err := get(tx, bucketReservations, res.ID, &stored); err != nil {
			return err
		}
		if stored.State != expected {
			return nil
		}
		res.CreatedOn = stored.CreatedOn
		res.UpdatedOn = time.Now().UTC()
		swapped = true
		return put(tx, bucketReservations, res.ID, res)
	})
	if err != nil {
		logger.DatabaseResult("CAS", 0, err, "reservationID", res.ID)
		return false, err
	}
	var rows int64
	if swapped {
		rows = 1
	}
	logger.DatabaseResult("CAS", rows, nil, "reservationID", res.ID)
	return swapped, nil
}

func (r *reservationRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return r.list(limit, func(res *domain.Reservation) bool {
		return res.State == domain.ReservationStatePendingPayment && res.HoldExpired(now)
	})
}

func (r *reservationRepository) ListByState(ctx context.Context, state domain.ReservationState, limit int) ([]domain.Reservation, error) {
	return r.list(limit, func(res *domain.Reservation) bool {
		return res.State == state
	})
}

func (r *reservationRepository) ListConfirmedWithoutContract(ctx context.Context, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.View(func(tx *bolt.Tx) error {
		contracts := tx.Bucket(bucketContracts)
		err := each(tx, bucketReservations, func(res *domain.Reservation) error {
			if res.State != domain.ReservationStateConfirmed {
				return nil
			}
			if contracts.Get([]byte(res.ID)) != nil {
				return nil
			}
			out = append(out, *res)
			if limit > 0 && len(out) >= limit {
				return errStop
			}
			return nil
		})
		if errors.Is(err, errStop) {
			return nil
		}
		return err
	})
	return out, err
}

func (r *reservationRepository) list(limit int, match func(*domain.Reservation) bool) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.View(func(tx *bolt.Tx) error {
		return each(tx, bucketReservations, func(res *domain.Reservation) error {
			if match(res) {
				out = append(out, *res)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

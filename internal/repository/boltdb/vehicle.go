package boltdb

import (
	"context"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

type vehicleRepository struct {
	db *bolt.DB
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.VehicleInstance, error) {
	var v domain.VehicleInstance
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketVehicles, id, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByModel returns instances of modelID. Empty stationID or status match
// any value.
func (r *vehicleRepository) ListByModel(ctx context.Context, modelID, stationID string, status domain.VehicleStatus) ([]domain.VehicleInstance, error) {
	var out []domain.VehicleInstance
	err := r.db.View(func(tx *bolt.Tx) error {
		return each(tx, bucketVehicles, func(v *domain.VehicleInstance) error {
			if v.ModelID != modelID {
				return nil
			}
			if stationID != "" && v.StationID != stationID {
				return nil
			}
			if status != "" && v.Status != status {
				return nil
			}
			out = append(out, *v)
			return nil
		})
	})
	return out, err
}

func (r *vehicleRepository) CountByModel(ctx context.Context, modelID string) (int, error) {
	count := 0
	err := r.db.View(func(tx *bolt.Tx) error {
		return each(tx, bucketVehicles, func(v *domain.VehicleInstance) error {
			if v.ModelID == modelID {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (r *vehicleRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.VehicleStatus) (bool, error) {
	logger.DatabaseCall("CAS", "vehicles", "vehicleID", id, "from", from, "to", to)
	swapped := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		var v domain.VehicleInstance
		if err := get(tx, bucketVehicles, id, &v); err != nil {
			return err
		}
		if v.Status != from {
			return nil
		}
		v.Status = to
		v.UpdatedOn = time.Now().UTC()
		swapped = true
		return put(tx, bucketVehicles, id, &v)
	})
	if err != nil {
		logger.DatabaseResult("CAS", 0, err, "vehicleID", id)
		return false, fmt.Errorf("vehicle %s status swap: %w", id, err)
	}
	var rows int64
	if swapped {
		rows = 1
	}
	logger.DatabaseResult("CAS", rows, nil, "vehicleID", id)
	return swapped, nil
}

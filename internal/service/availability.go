package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

// AvailabilityIndex claims and releases vehicle instances. Every claim is a
// compare-and-set in the store, so concurrent claimants in any process never
// share an instance.
type AvailabilityIndex struct {
	vehicles repository.VehicleRepository
	catalog  repository.CatalogRepository
	shuffle  func(n int, swap func(i, j int))
}

func NewAvailabilityIndex(vehicles repository.VehicleRepository, catalog repository.CatalogRepository) *AvailabilityIndex {
	return &AvailabilityIndex{
		vehicles: vehicles,
		catalog:  catalog,
		shuffle:  rand.Shuffle,
	}
}

// TryClaim reserves one AVAILABLE instance of modelID at stationID. When none
// can be claimed the error is a *domain.NoVehicleAvailableError naming the
// other stations that still have the model.
func (a *AvailabilityIndex) TryClaim(ctx context.Context, modelID, stationID string) (string, error) {
	candidates, err := a.vehicles.ListByModel(ctx, modelID, stationID, domain.VehicleStatusAvailable)
	if err != nil {
		return "", fmt.Errorf("failed to list candidates: %w", err)
	}
	a.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for _, v := range candidates {
		ok, err := a.vehicles.CompareAndSetStatus(ctx, v.ID, domain.VehicleStatusAvailable, domain.VehicleStatusReserved)
		if err != nil {
			return "", err
		}
		if ok {
			logger.Info("Vehicle claimed", "vehicleID", v.ID, "modelID", modelID, "stationID", stationID)
			return v.ID, nil
		}
		logger.Debug("Lost claim race, trying next candidate", "vehicleID", v.ID)
	}

	suggestions, err := a.Suggest(ctx, modelID, stationID)
	if err != nil {
		logger.Warn("Failed to build station suggestions", "modelID", modelID, "error", err)
	}
	return "", &domain.NoVehicleAvailableError{ModelID: modelID, StationID: stationID, Suggestions: suggestions}
}

// Release returns a held instance to the pool. Releasing an instance that is
// no longer RESERVED is a no-op.
func (a *AvailabilityIndex) Release(ctx context.Context, vehicleID string) error {
	return a.move(ctx, vehicleID, domain.VehicleStatusReserved, domain.VehicleStatusAvailable)
}

// MarkPendingCheckin records that a paid hold awaits pickup.
func (a *AvailabilityIndex) MarkPendingCheckin(ctx context.Context, vehicleID string) error {
	return a.advanceTo(ctx, vehicleID, domain.VehicleStatusPendingCheckin)
}

func (a *AvailabilityIndex) MarkRented(ctx context.Context, vehicleID string) error {
	return a.advanceTo(ctx, vehicleID, domain.VehicleStatusRented)
}

// ReturnToPool makes a returned vehicle available again.
func (a *AvailabilityIndex) ReturnToPool(ctx context.Context, vehicleID string) error {
	return a.advanceTo(ctx, vehicleID, domain.VehicleStatusAvailable)
}

// rentalPath maps a target status to the statuses it may be reached from, in
// the order a claimed instance passes through them.
var rentalPath = map[domain.VehicleStatus][]domain.VehicleStatus{
	domain.VehicleStatusPendingCheckin: {domain.VehicleStatusReserved},
	domain.VehicleStatusRented:         {domain.VehicleStatusReserved, domain.VehicleStatusPendingCheckin},
	domain.VehicleStatusAvailable:      {domain.VehicleStatusRented},
}

// advanceTo walks a claimed instance forward to target, replaying any step a
// failed earlier write left out. An instance already at target is left alone;
// one off the path yields ErrVehicleStatusMismatch.
func (a *AvailabilityIndex) advanceTo(ctx context.Context, vehicleID string, target domain.VehicleStatus) error {
	if vehicleID == "" {
		return nil
	}
	for {
		v, err := a.vehicles.GetByID(ctx, vehicleID)
		if err != nil {
			return err
		}
		if v.Status == target {
			return nil
		}
		steps := rentalPath[target]
		at := -1
		for i, st := range steps {
			if st == v.Status {
				at = i
			}
		}
		if at < 0 {
			return fmt.Errorf("%w: vehicle %s is %s, cannot become %s", domain.ErrVehicleStatusMismatch, vehicleID, v.Status, target)
		}

		next := target
		if at+1 < len(steps) {
			next = steps[at+1]
		}
		ok, err := a.vehicles.CompareAndSetStatus(ctx, vehicleID, v.Status, next)
		if err != nil {
			return err
		}
		if ok && next != target {
			logger.Warn("Replayed missed vehicle transition", "vehicleID", vehicleID, "from", v.Status, "to", next)
		}
		// A lost CAS re-reads the instance and decides again.
	}
}

func (a *AvailabilityIndex) move(ctx context.Context, vehicleID string, from, to domain.VehicleStatus) error {
	if vehicleID == "" {
		return nil
	}
	ok, err := a.vehicles.CompareAndSetStatus(ctx, vehicleID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("Vehicle not in expected status", "vehicleID", vehicleID, "from", from, "to", to)
	}
	return nil
}

// Suggest lists the stations, other than excludeStationID, holding at least
// one AVAILABLE instance of modelID, ordered by id.
func (a *AvailabilityIndex) Suggest(ctx context.Context, modelID, excludeStationID string) ([]domain.Station, error) {
	available, err := a.vehicles.ListByModel(ctx, modelID, "", domain.VehicleStatusAvailable)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, v := range available {
		if v.StationID != excludeStationID {
			seen[v.StationID] = true
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	stations, err := a.catalog.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Station
	for _, s := range stations {
		if seen[s.ID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

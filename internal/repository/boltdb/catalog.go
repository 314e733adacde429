package boltdb

import (
	"context"
	"sort"

	bolt "github.com/boltdb/bolt"

	"evrental-backend/internal/domain"
)

type catalogRepository struct {
	db *bolt.DB
}

func (r *catalogRepository) GetModel(ctx context.Context, id string) (*domain.VehicleModel, error) {
	var m domain.VehicleModel
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketModels, id, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *catalogRepository) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	var st domain.Station
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketStations, id, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *catalogRepository) ListStations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.db.View(func(tx *bolt.Tx) error {
		return each(tx, bucketStations, func(st *domain.Station) error {
			stations = append(stations, *st)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ID < stations[j].ID })
	return stations, nil
}

type customerRepository struct {
	db *bolt.DB
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketCustomers, id, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

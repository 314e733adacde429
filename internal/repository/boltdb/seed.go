package boltdb

import (
	"context"
	"fmt"
	"os"

	bolt "github.com/boltdb/bolt"
	"gopkg.in/yaml.v3"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

// Fleet is the reference data loaded into an empty development store.
type Fleet struct {
	Models    []domain.VehicleModel    `yaml:"models"`
	Stations  []domain.Station         `yaml:"stations"`
	Vehicles  []domain.VehicleInstance `yaml:"vehicles"`
	Customers []domain.Customer        `yaml:"customers"`
}

// LoadFleet reads a fleet seed file.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file: %w", err)
	}
	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("failed to parse fleet file: %w", err)
	}
	return &fleet, nil
}

// Seed writes the fleet in one transaction. Models, stations and customers are
// overwritten; vehicles already present keep their stored status.
func (s *Store) Seed(ctx context.Context, fleet *Fleet) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for i := range fleet.Models {
			if err := put(tx, bucketModels, fleet.Models[i].ID, &fleet.Models[i]); err != nil {
				return err
			}
		}
		for i := range fleet.Stations {
			if err := put(tx, bucketStations, fleet.Stations[i].ID, &fleet.Stations[i]); err != nil {
				return err
			}
		}
		for i := range fleet.Customers {
			if err := put(tx, bucketCustomers, fleet.Customers[i].ID, &fleet.Customers[i]); err != nil {
				return err
			}
		}
		for i := range fleet.Vehicles {
			v := fleet.Vehicles[i]
			if tx.Bucket(bucketVehicles).Get([]byte(v.ID)) != nil {
				continue
			}
			if v.Status == "" {
				v.Status = domain.VehicleStatusAvailable
			}
			if err := put(tx, bucketVehicles, v.ID, &v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed fleet: %w", err)
	}
	logger.Info("Fleet seeded", "models", len(fleet.Models), "stations", len(fleet.Stations), "vehicles", len(fleet.Vehicles))
	return nil
}

package repository

import (
	"context"
	"time"

	"evrental-backend/internal/domain"
)

// CatalogRepository exposes read-only model and station reference data.
type CatalogRepository interface {
	GetModel(ctx context.Context, id string) (*domain.VehicleModel, error)
	GetStation(ctx context.Context, id string) (*domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
}

type VehicleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.VehicleInstance, error)
	ListByModel(ctx context.Context, modelID, stationID string, status domain.VehicleStatus) ([]domain.VehicleInstance, error)
	CountByModel(ctx context.Context, modelID string) (int, error)
	// CompareAndSetStatus moves an instance from one status to another and
	// reports false when the instance was not in the expected status.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.VehicleStatus) (bool, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	// CompareAndSwap persists r only if the stored state still equals expected.
	CompareAndSwap(ctx context.Context, r *domain.Reservation, expected domain.ReservationState) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	ListByState(ctx context.Context, state domain.ReservationState, limit int) ([]domain.Reservation, error)
	ListConfirmedWithoutContract(ctx context.Context, limit int) ([]domain.Reservation, error)
}

type ContractRepository interface {
	// CreateIfAbsent stores c unless a contract for the same reservation
	// exists; either way the stored contract is returned. created is true only
	// for the caller whose row was written.
	CreateIfAbsent(ctx context.Context, c *domain.Contract) (stored *domain.Contract, created bool, err error)
	GetByReservationID(ctx context.Context, reservationID string) (*domain.Contract, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Contract, error)
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]domain.Notification, int32, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	Catalog() CatalogRepository
	Vehicles() VehicleRepository
	Reservations() ReservationRepository
	Contracts() ContractRepository
	Customers() CustomerRepository
	Notifications() NotificationRepository
	Close() error
}

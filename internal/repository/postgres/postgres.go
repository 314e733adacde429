package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.CatalogRepository
	repository.VehicleRepository
	repository.ReservationRepository
	repository.ContractRepository
	repository.CustomerRepository
	repository.NotificationRepository
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		CatalogRepository:      NewCatalogRepository(db),
		VehicleRepository:      NewVehicleRepository(db),
		ReservationRepository:  NewReservationRepository(db),
		ContractRepository:     NewContractRepository(db),
		CustomerRepository:     NewCustomerRepository(db),
		NotificationRepository: NewNotificationRepository(db),
	}
}

func (s *Store) Catalog() repository.CatalogRepository { return s.CatalogRepository }
func (s *Store) Vehicles() repository.VehicleRepository { return s.VehicleRepository }
func (s *Store) Reservations() repository.ReservationRepository { return s.ReservationRepository }
func (s *Store) Contracts() repository.ContractRepository { return s.ContractRepository }
func (s *Store) Customers() repository.CustomerRepository { return s.CustomerRepository }
func (s *Store) Notifications() repository.NotificationRepository { return s.NotificationRepository }

func (s *Store) Close() error {
	return s.db.Close()
}

// notFound maps sql.ErrNoRows onto domain.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

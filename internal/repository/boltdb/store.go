// Package boltdb is a single-file embedded implementation of the repositories,
// used for development and single-node deployments. Every compare-and-set runs
// inside one bolt write transaction, and bolt serializes writers, so a
// transition observed as successful was applied against the state it checked.
package boltdb

import (
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"evrental-backend/internal/codec"
	"evrental-backend/internal/domain"
	"evrental-backend/internal/repository"
)

var (
	bucketModels        = []byte("models")
	bucketStations      = []byte("stations")
	bucketVehicles      = []byte("vehicles")
	bucketCustomers     = []byte("customers")
	bucketReservations  = []byte("reservations")
	bucketContracts     = []byte("contracts")
	bucketContractKeys  = []byte("contract_keys")
	bucketNotifications = []byte("notifications")

	allBuckets = [][]byte{
		bucketModels, bucketStations, bucketVehicles, bucketCustomers,
		bucketReservations, bucketContracts, bucketContractKeys, bucketNotifications,
	}
)

type Store struct {
	db *bolt.DB

	catalog       *catalogRepository
	vehicles      *vehicleRepository
	reservations  *reservationRepository
	contracts     *contractRepository
	customers     *customerRepository
	notifications *notificationRepository
}

var _ repository.Store = (*Store)(nil)

// Open opens (or creates) the database file at path and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{
		db:            db,
		catalog:       &catalogRepository{db: db},
		vehicles:      &vehicleRepository{db: db},
		reservations:  &reservationRepository{db: db},
		contracts:     &contractRepository{db: db},
		customers:     &customerRepository{db: db},
		notifications: &notificationRepository{db: db},
	}, nil
}

func (s *Store) Catalog() repository.CatalogRepository { return s.catalog }
func (s *Store) Vehicles() repository.VehicleRepository { return s.vehicles }
func (s *Store) Reservations() repository.ReservationRepository { return s.reservations }
func (s *Store) Contracts() repository.ContractRepository { return s.contracts }
func (s *Store) Customers() repository.CustomerRepository { return s.customers }
func (s *Store) Notifications() repository.NotificationRepository { return s.notifications }

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func get(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return domain.ErrNotFound
	}
	return codec.Unmarshal(data, v)
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// each decodes every value of bucket into a fresh T and passes it to fn.
func each[T any](tx *bolt.Tx, bucket []byte, fn func(*T) error) error {
	return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
		var item T
		if err := codec.Unmarshal(v, &item); err != nil {
			return err
		}
		return fn(&item)
	})
}

var errStop = errors.New("stop iteration")

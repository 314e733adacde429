package postgres

import (
	"context"
	"database/sql"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/repository"
)

type customerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) repository.CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	c := &domain.Customer{}
	query := `SELECT id, email, name, phone_number, license_no FROM customers WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &c.LicenseNo)
	if err != nil {
		return nil, notFound(err, "customer", id)
	}
	return c, nil
}

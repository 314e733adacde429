package postgres

import (
	"context"
	"database/sql"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/repository"
)

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) repository.CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetModel(ctx context.Context, id string) (*domain.VehicleModel, error) {
	m := &domain.VehicleModel{}
	query := `SELECT id, manufacturer, name, hourly_rate_cents, base_cost_cents, seats, range_km FROM vehicle_models WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Manufacturer, &m.Name, &m.HourlyRateCents, &m.BaseCostCents, &m.Seats, &m.RangeKm)
	if err != nil {
		return nil, notFound(err, "vehicle model", id)
	}
	return m, nil
}

func (r *catalogRepository) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	s := &domain.Station{}
	query := `SELECT id, name, latitude, longitude, time_zone, open_minute, close_minute FROM stations WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.TimeZone, &s.OpenMinute, &s.CloseMinute)
	if err != nil {
		return nil, notFound(err, "station", id)
	}
	return s, nil
}

func (r *catalogRepository) ListStations(ctx context.Context) ([]domain.Station, error) {
	query := `SELECT id, name, latitude, longitude, time_zone, open_minute, close_minute FROM stations ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var s domain.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.TimeZone, &s.OpenMinute, &s.CloseMinute); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

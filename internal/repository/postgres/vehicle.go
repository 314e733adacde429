package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/repository"
)

type vehicleRepository struct {
	db *sql.DB
}

func NewVehicleRepository(db *sql.DB) repository.VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.VehicleInstance, error) {
	v := &domain.VehicleInstance{}
	query := `SELECT id, model_id, station_id, plate, status, updated_on FROM vehicle_instances WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.ModelID, &v.StationID, &v.Plate, &v.Status, &v.UpdatedOn)
	if err != nil {
		return nil, notFound(err, "vehicle", id)
	}
	return v, nil
}

func (r *vehicleRepository) ListByModel(ctx context.Context, modelID, stationID string, status domain.VehicleStatus) ([]domain.VehicleInstance, error) {
	query := `SELECT id, model_id, station_id, plate, status, updated_on FROM vehicle_instances WHERE model_id = $1`
	args := []interface{}{modelID}
	if stationID != "" {
		args = append(args, stationID)
		query += fmt.Sprintf(" AND station_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []domain.VehicleInstance
	for rows.Next() {
		var v domain.VehicleInstance
		if err := rows.Scan(&v.ID, &v.ModelID, &v.StationID, &v.Plate, &v.Status, &v.UpdatedOn); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r *vehicleRepository) CountByModel(ctx context.Context, modelID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM vehicle_instances WHERE model_id = $1`, modelID).Scan(&count)
	return count, err
}

// CompareAndSetStatus relies on the row lock taken by UPDATE: of two
// concurrent swaps from the same status only one matches the WHERE clause.
func (r *vehicleRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.VehicleStatus) (bool, error) {
	query := `UPDATE vehicle_instances SET status = $1, updated_on = NOW() WHERE id = $2 AND status = $3`
	logger.DatabaseCall("UPDATE", "vehicle_instances", "vehicleID", id, "from", from, "to", to)

	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "vehicleID", id)
		return false, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err, "vehicleID", id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

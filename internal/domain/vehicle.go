package domain

import "time"

type VehicleStatus string

const (
	VehicleStatusAvailable      VehicleStatus = "AVAILABLE"
	VehicleStatusReserved       VehicleStatus = "RESERVED"
	VehicleStatusPendingCheckin VehicleStatus = "PENDING_CHECKIN"
	VehicleStatusRented         VehicleStatus = "RENTED"
	VehicleStatusMaintenance    VehicleStatus = "MAINTENANCE"
	VehicleStatusDamaged        VehicleStatus = "DAMAGED"
)

// VehicleModel is catalog reference data. Prices are in cents.
type VehicleModel struct {
	ID              string `json:"id" yaml:"id"`
	Manufacturer    string `json:"manufacturer" yaml:"manufacturer"`
	Name            string `json:"name" yaml:"name"`
	HourlyRateCents int64  `json:"hourly_rate_cents" yaml:"hourly_rate_cents"`
	BaseCostCents   int64  `json:"base_cost_cents" yaml:"base_cost_cents"`
	Seats           int32  `json:"seats" yaml:"seats"`
	RangeKm         int32  `json:"range_km" yaml:"range_km"`
}

// VehicleInstance is one rentable unit. While a reservation is open its status
// is only changed by the reservation service.
type VehicleInstance struct {
	ID        string        `json:"id" yaml:"id"`
	ModelID   string        `json:"model_id" yaml:"model_id"`
	StationID string        `json:"station_id" yaml:"station_id"`
	Plate     string        `json:"plate" yaml:"plate"`
	Status    VehicleStatus `json:"status" yaml:"status"`
	UpdatedOn time.Time     `json:"updated_on" yaml:"-"`
}

package models

import "time"

// Vehicle represents a training vehicle in the fleet.
type Vehicle struct {
	ID               string    `db:"id" json:"id"`
	PlateNumber      string    `db:"plate_number" json:"plate_number"`
	VehicleType      string    `db:"vehicle_type" json:"vehicle_type"`
	Transmission     string    `db:"transmission" json:"transmission"`
	FuelType         string    `db:"fuel_type" json:"fuel_type"`
	Available        bool      `db:"available" json:"available"`
	AssignedStudents int       `db:"assigned_students" json:"assigned_students"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// VehicleFilter defines filter criteria for listing vehicles.
type VehicleFilter struct {
	VehicleType string
	Available   *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driveschool-api/internal/models"
)

// VehicleRepository handles persistence of the vehicle fleet.
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository constructs the repository.
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, plate_number, vehicle_type, transmission, fuel_type, available, assigned_students, created_at, updated_at`

// FindByID returns a vehicle by identifier.
func (r *VehicleRepository) FindByID(ctx context.Context, id string) (*models.Vehicle, error) {
	query := fmt.Sprintf(`SELECT %s FROM vehicles WHERE id = $1 LIMIT 1`, vehicleColumns)
	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find vehicle by id: %w", err)
	}
	return &vehicle, nil
}

// PlateExists checks whether a vehicle already uses the plate number.
func (r *VehicleRepository) PlateExists(ctx context.Context, plate, excludeID string) (bool, error) {
	query := `SELECT 1 FROM vehicles WHERE plate_number = $1`
	args := []interface{}{plate}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check vehicle plate: %w", err)
	}
	return true, nil
}

// List returns vehicles matching the filter with a total count.
func (r *VehicleRepository) List(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int, error) {
	baseQuery := `FROM vehicles WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.VehicleType != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(vehicle_type) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.VehicleType))
	}
	if filter.Available != nil {
		conditions = append(conditions, fmt.Sprintf("available = $%d", len(args)+1))
		args = append(args, *filter.Available)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"plate_number": true,
		"vehicle_type": true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", vehicleColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var vehicles []models.Vehicle
	if err := r.db.SelectContext(ctx, &vehicles, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list vehicles: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count vehicles: %w", err)
	}

	return vehicles, total, nil
}

// Create inserts a new vehicle record.
func (r *VehicleRepository) Create(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == "" {
		vehicle.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = now
	}
	vehicle.UpdatedAt = now

	const query = `INSERT INTO vehicles (id, plate_number, vehicle_type, transmission, fuel_type, available, assigned_students, created_at, updated_at)
        VALUES (:id, :plate_number, :vehicle_type, :transmission, :fuel_type, :available, :assigned_students, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vehicle); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

// Update updates mutable fields of a vehicle.
func (r *VehicleRepository) Update(ctx context.Context, vehicle *models.Vehicle) error {
	vehicle.UpdatedAt = time.Now().UTC()
	const query = `UPDATE vehicles SET plate_number = :plate_number, vehicle_type = :vehicle_type, transmission = :transmission,
        fuel_type = :fuel_type, available = :available, assigned_students = :assigned_students, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, vehicle); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("update vehicle: %w", err)
	}
	return nil
}

// Delete removes a vehicle record.
func (r *VehicleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM vehicles WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vehicle rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

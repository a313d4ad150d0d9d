package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	"github.com/noah-isme/driveschool-api/internal/repository"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type vehicleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Vehicle, error)
	PlateExists(ctx context.Context, plate, excludeID string) (bool, error)
	List(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int, error)
	Create(ctx context.Context, vehicle *models.Vehicle) error
	Update(ctx context.Context, vehicle *models.Vehicle) error
	Delete(ctx context.Context, id string) error
}

type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateVehicleRequest describes vehicle creation payload.
type CreateVehicleRequest struct {
	PlateNumber  string `json:"plate_number" validate:"required"`
	VehicleType  string `json:"vehicle_type" validate:"required"`
	Transmission string `json:"transmission" validate:"required"`
	FuelType     string `json:"fuel_type" validate:"required"`
	Available    *bool  `json:"available,omitempty"`
}

// UpdateVehicleRequest describes a partial vehicle update.
type UpdateVehicleRequest struct {
	PlateNumber      *string `json:"plate_number,omitempty"`
	VehicleType      *string `json:"vehicle_type,omitempty"`
	Transmission     *string `json:"transmission,omitempty"`
	FuelType         *string `json:"fuel_type,omitempty"`
	Available        *bool   `json:"available,omitempty"`
	AssignedStudents *int    `json:"assigned_students,omitempty" validate:"omitempty,gte=0"`
}

// VehicleService manages the training fleet.
type VehicleService struct {
	repo      vehicleRepository
	cache     listingCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

const vehicleCachePrefix = "vehicles:"

// NewVehicleService constructs VehicleService. cache may be nil.
func NewVehicleService(repo vehicleRepository, cache listingCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *VehicleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VehicleService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns vehicles with pagination metadata.
func (s *VehicleService) List(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, *models.Pagination, error) {
	vehicles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vehicles")
	}
	return vehicles, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListAvailable returns available vehicles, served from cache when warm.
func (s *VehicleService) ListAvailable(ctx context.Context) ([]models.Vehicle, error) {
	const cacheKey = vehicleCachePrefix + "available"
	if s.cache != nil {
		var cached []models.Vehicle
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	available := true
	vehicles, _, err := s.repo.List(ctx, models.VehicleFilter{Available: &available, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available vehicles")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, vehicles, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache available vehicles", zap.Error(err))
		}
	}
	return vehicles, nil
}

// ListByType returns vehicles of a given type.
func (s *VehicleService) ListByType(ctx context.Context, vehicleType string) ([]models.Vehicle, error) {
	vehicles, _, err := s.repo.List(ctx, models.VehicleFilter{VehicleType: vehicleType, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vehicles by type")
	}
	return vehicles, nil
}

// GetByID returns a single vehicle.
func (s *VehicleService) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vehicle")
	}
	return vehicle, nil
}

// Create registers a new vehicle.
func (s *VehicleService) Create(ctx context.Context, req CreateVehicleRequest) (*models.Vehicle, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vehicle payload")
	}

	exists, err := s.repo.PlateExists(ctx, req.PlateNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate plate number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "plate number is already registered")
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	vehicle := &models.Vehicle{
		PlateNumber:  req.PlateNumber,
		VehicleType:  req.VehicleType,
		Transmission: req.Transmission,
		FuelType:     req.FuelType,
		Available:    available,
	}
	if err := s.repo.Create(ctx, vehicle); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "plate number is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create vehicle")
	}
	s.invalidateCache(ctx)
	return vehicle, nil
}

// Update applies a partial update to a vehicle.
func (s *VehicleService) Update(ctx context.Context, id string, req UpdateVehicleRequest) (*models.Vehicle, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vehicle payload")
	}

	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vehicle")
	}

	if req.PlateNumber != nil && *req.PlateNumber != vehicle.PlateNumber {
		exists, err := s.repo.PlateExists(ctx, *req.PlateNumber, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate plate number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "plate number is already registered")
		}
		vehicle.PlateNumber = *req.PlateNumber
	}
	if req.VehicleType != nil {
		vehicle.VehicleType = *req.VehicleType
	}
	if req.Transmission != nil {
		vehicle.Transmission = *req.Transmission
	}
	if req.FuelType != nil {
		vehicle.FuelType = *req.FuelType
	}
	if req.Available != nil {
		vehicle.Available = *req.Available
	}
	if req.AssignedStudents != nil {
		vehicle.AssignedStudents = *req.AssignedStudents
	}

	if err := s.repo.Update(ctx, vehicle); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "plate number is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update vehicle")
	}
	s.invalidateCache(ctx)
	return vehicle, nil
}

// Delete removes a vehicle from the fleet.
func (s *VehicleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete vehicle")
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *VehicleService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, vehicleCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate vehicle cache", zap.Error(err))
	}
}

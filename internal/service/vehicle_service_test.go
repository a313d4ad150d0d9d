package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type mockVehicleRepo struct {
	vehicles map[string]models.Vehicle
	listed   int

	created *models.Vehicle
	deleted []string
}

func (m *mockVehicleRepo) FindByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if v, ok := m.vehicles[id]; ok {
		return &v, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVehicleRepo) PlateExists(ctx context.Context, plate, excludeID string) (bool, error) {
	for _, v := range m.vehicles {
		if v.PlateNumber == plate && v.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockVehicleRepo) List(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int, error) {
	m.listed++
	var list []models.Vehicle
	for _, v := range m.vehicles {
		if filter.Available != nil && v.Available != *filter.Available {
			continue
		}
		if filter.VehicleType != "" && v.VehicleType != filter.VehicleType {
			continue
		}
		list = append(list, v)
	}
	return list, len(list), nil
}

func (m *mockVehicleRepo) Create(ctx context.Context, vehicle *models.Vehicle) error {
	if m.vehicles == nil {
		m.vehicles = make(map[string]models.Vehicle)
	}
	if vehicle.ID == "" {
		vehicle.ID = "new-vehicle"
	}
	m.vehicles[vehicle.ID] = *vehicle
	m.created = vehicle
	return nil
}

func (m *mockVehicleRepo) Update(ctx context.Context, vehicle *models.Vehicle) error {
	m.vehicles[vehicle.ID] = *vehicle
	return nil
}

func (m *mockVehicleRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.vehicles[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.vehicles, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mapCache struct {
	values     map[string][]byte
	invalidate []string
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalidate = append(c.invalidate, pattern)
	c.values = nil
	return nil
}

func TestVehicleServiceCreateDuplicatePlate(t *testing.T) {
	repo := &mockVehicleRepo{vehicles: map[string]models.Vehicle{
		"v1": {ID: "v1", PlateNumber: "B 1234 XY"},
	}}
	svc := NewVehicleService(repo, nil, 0, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateVehicleRequest{
		PlateNumber:  "B 1234 XY",
		VehicleType:  "sedan",
		Transmission: "manual",
		FuelType:     "petrol",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestVehicleServiceCreateDefaultsAvailable(t *testing.T) {
	repo := &mockVehicleRepo{}
	svc := NewVehicleService(repo, nil, 0, validator.New(), zap.NewNop())

	vehicle, err := svc.Create(context.Background(), CreateVehicleRequest{
		PlateNumber:  "B 1234 XY",
		VehicleType:  "sedan",
		Transmission: "manual",
		FuelType:     "petrol",
	})
	require.NoError(t, err)
	assert.True(t, vehicle.Available)
}

func TestVehicleServiceListAvailableCacheAside(t *testing.T) {
	repo := &mockVehicleRepo{vehicles: map[string]models.Vehicle{
		"v1": {ID: "v1", PlateNumber: "B 1234 XY", Available: true},
		"v2": {ID: "v2", PlateNumber: "B 5678 ZZ", Available: false},
	}}
	cache := &mapCache{}
	svc := NewVehicleService(repo, cache, time.Minute, validator.New(), zap.NewNop())

	first, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listed)

	// Second call is served from the cache without touching the repo.
	second, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, repo.listed)
}

func TestVehicleServiceWriteInvalidatesCache(t *testing.T) {
	repo := &mockVehicleRepo{vehicles: map[string]models.Vehicle{
		"v1": {ID: "v1", PlateNumber: "B 1234 XY", Available: true},
	}}
	cache := &mapCache{}
	svc := NewVehicleService(repo, cache, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateVehicleRequest{
		PlateNumber:  "B 9999 AA",
		VehicleType:  "suv",
		Transmission: "automatic",
		FuelType:     "diesel",
	})
	require.NoError(t, err)
	assert.Contains(t, cache.invalidate, "vehicles:*")

	list, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVehicleServiceDeleteMissing(t *testing.T) {
	svc := NewVehicleService(&mockVehicleRepo{}, nil, 0, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

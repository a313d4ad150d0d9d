package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions map[string]models.TrainingSession
	counter  int

	created       *models.TrainingSession
	updated       *models.TrainingSession
	statusUpdates map[string]models.SessionStatus
}

func (m *mockSessionRepo) NextSessionID(ctx context.Context) (string, error) {
	m.counter++
	return fmt.Sprintf("PT%04d", m.counter), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.TrainingSession, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := m.sessions[id]; ok {
		return &models.SessionDetail{TrainingSession: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	var list []models.SessionDetail
	for _, s := range m.sessions {
		if filter.AvailableOnly && (s.Status != models.SessionStatusPending || s.CurrentCount >= s.MaxCount) {
			continue
		}
		if filter.InstructorID != "" && s.InstructorID != filter.InstructorID {
			continue
		}
		list = append(list, models.SessionDetail{TrainingSession: s})
	}
	return list, len(list), nil
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.TrainingSession) error {
	if m.sessions == nil {
		m.sessions = make(map[string]models.TrainingSession)
	}
	m.sessions[session.ID] = *session
	m.created = session
	return nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *models.TrainingSession) error {
	m.sessions[session.ID] = *session
	m.updated = session
	return nil
}

func (m *mockSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.sessions[id] = s
	if m.statusUpdates == nil {
		m.statusUpdates = make(map[string]models.SessionStatus)
	}
	m.statusUpdates[id] = status
	return nil
}

func (m *mockSessionRepo) DeleteIfEmpty(ctx context.Context, id string) (bool, bool, error) {
	s, ok := m.sessions[id]
	if !ok {
		return false, false, nil
	}
	if s.CurrentCount > 0 {
		return false, true, nil
	}
	delete(m.sessions, id)
	return true, true, nil
}

type mockVehicleReader struct {
	vehicles map[string]models.Vehicle
}

func (m *mockVehicleReader) FindByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if v, ok := m.vehicles[id]; ok {
		return &v, nil
	}
	return nil, sql.ErrNoRows
}

type mockInstructorReader struct {
	instructors map[string]models.Instructor
}

func (m *mockInstructorReader) FindByID(ctx context.Context, id string) (*models.Instructor, error) {
	if i, ok := m.instructors[id]; ok {
		return &i, nil
	}
	return nil, sql.ErrNoRows
}

func newSessionFixture() (*SessionService, *mockSessionRepo) {
	repo := &mockSessionRepo{sessions: make(map[string]models.TrainingSession)}
	vehicles := &mockVehicleReader{vehicles: map[string]models.Vehicle{"v1": {ID: "v1", PlateNumber: "B 1234 XY"}}}
	instructors := &mockInstructorReader{instructors: map[string]models.Instructor{"i1": {ID: "i1", FullName: "Pat Jones"}}}
	svc := NewSessionService(repo, vehicles, instructors, nil, 0, validator.New(), zap.NewNop())
	return svc, repo
}

func TestSessionServiceCreateMintsCounterID(t *testing.T) {
	svc, repo := newSessionFixture()

	req := CreateSessionRequest{
		SessionDate:  "2025-06-01",
		SessionTime:  "09:00",
		Location:     "North Lot",
		VehicleID:    "v1",
		InstructorID: "i1",
		MaxCount:     5,
	}

	first, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "PT0001", first.ID)
	assert.Equal(t, models.SessionStatusPending, first.Status)
	assert.Equal(t, 0, first.CurrentCount)

	second, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "PT0002", second.ID)
	assert.NotNil(t, repo.created)
}

func TestSessionServiceCreateUnknownVehicle(t *testing.T) {
	svc, _ := newSessionFixture()

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		SessionDate:  "2025-06-01",
		SessionTime:  "09:00",
		Location:     "North Lot",
		VehicleID:    "ghost",
		InstructorID: "i1",
		MaxCount:     5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateRejectsBadDate(t *testing.T) {
	svc, _ := newSessionFixture()

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		SessionDate:  "01/06/2025",
		SessionTime:  "09:00",
		Location:     "North Lot",
		VehicleID:    "v1",
		InstructorID: "i1",
		MaxCount:     5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceUpdateGuardsCapacity(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{
		ID: "PT0001", SessionDate: time.Now(), SessionTime: "09:00", Location: "North Lot",
		VehicleID: "v1", InstructorID: "i1", MaxCount: 5, CurrentCount: 4, Status: models.SessionStatusPending,
	}

	smaller := 3
	_, err := svc.Update(context.Background(), "PT0001", UpdateSessionRequest{MaxCount: &smaller})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestSessionServiceUpdateRevalidatesReferences(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{
		ID: "PT0001", SessionDate: time.Now(), SessionTime: "09:00", Location: "North Lot",
		VehicleID: "v1", InstructorID: "i1", MaxCount: 5, Status: models.SessionStatusPending,
	}

	ghost := "ghost"
	_, err := svc.Update(context.Background(), "PT0001", UpdateSessionRequest{VehicleID: &ghost})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceUpdateStatusInvalidValue(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{ID: "PT0001", Status: models.SessionStatusPending}

	_, err := svc.UpdateStatus(context.Background(), "PT0001", UpdateSessionStatusRequest{Status: "CANCELLED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceDeleteWithEnrollmentsConflicts(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{ID: "PT0001", MaxCount: 5, CurrentCount: 2, Status: models.SessionStatusPending}

	err := svc.Delete(context.Background(), "PT0001")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.sessions, "PT0001")
}

func TestSessionServiceDeleteEmptySession(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{ID: "PT0001", MaxCount: 5, Status: models.SessionStatusPending}

	require.NoError(t, svc.Delete(context.Background(), "PT0001"))
	assert.NotContains(t, repo.sessions, "PT0001")
}

func TestSessionServiceDeleteMissingSession(t *testing.T) {
	svc, _ := newSessionFixture()

	err := svc.Delete(context.Background(), "PT9999")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceListAvailableFiltersFullSessions(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["PT0001"] = models.TrainingSession{ID: "PT0001", MaxCount: 2, CurrentCount: 2, Status: models.SessionStatusPending}
	repo.sessions["PT0002"] = models.TrainingSession{ID: "PT0002", MaxCount: 2, CurrentCount: 1, Status: models.SessionStatusPending}
	repo.sessions["PT0003"] = models.TrainingSession{ID: "PT0003", MaxCount: 2, CurrentCount: 0, Status: models.SessionStatusCompleted}

	list, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PT0002", list[0].ID)
}

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	roster      map[string][]models.EnrollmentRosterEntry
	counts      map[models.EnrollmentStatus]int
	sessions    *mockSessionReader

	created   *models.Enrollment
	deleted   []string
	status    map[string]models.EnrollmentStatus
	denyClaim bool
}

func (m *mockEnrollmentRepo) CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if m.denyClaim {
		return false, nil
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	if m.sessions != nil {
		if s, ok := m.sessions.sessions[enrollment.SessionID]; ok {
			s.CurrentCount++
			m.sessions.sessions[enrollment.SessionID] = s
		}
	}
	return true, nil
}

func (m *mockEnrollmentRepo) DeleteWithCapacity(ctx context.Context, id, sessionID string) error {
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	if m.sessions != nil {
		if s, ok := m.sessions.sessions[sessionID]; ok && s.CurrentCount > 0 {
			s.CurrentCount--
			m.sessions.sessions[sessionID] = s
		}
	}
	return nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	for _, e := range m.enrollments {
		if e.UserID == userID && e.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) ListBySession(ctx context.Context, sessionID string) ([]models.EnrollmentRosterEntry, error) {
	return m.roster[sessionID], nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	m.enrollments[id] = e
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	return nil
}

func (m *mockEnrollmentRepo) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	return m.counts, nil
}

type mockSessionReader struct {
	sessions map[string]models.TrainingSession
}

func (m *mockSessionReader) FindByID(ctx context.Context, id string) (*models.TrainingSession, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserReader struct {
	users map[string]models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture(session models.TrainingSession) (*EnrollmentService, *mockEnrollmentRepo, *mockSessionReader) {
	sessions := &mockSessionReader{sessions: map[string]models.TrainingSession{session.ID: session}}
	users := &mockUserReader{users: map[string]models.User{
		"u1": {ID: "u1", FirstName: "Dana", LastName: "Lee", Email: "dana@example.com", Role: models.RoleStudent},
		"u2": {ID: "u2", FirstName: "Sam", LastName: "Kim", Email: "sam@example.com", Role: models.RoleStudent},
	}}
	repo := &mockEnrollmentRepo{sessions: sessions}
	svc := NewEnrollmentService(repo, sessions, users, validator.New(), zap.NewNop())
	return svc, repo, sessions
}

func pendingSession(current, max int) models.TrainingSession {
	return models.TrainingSession{
		ID:           "PT0001",
		SessionDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		SessionTime:  "09:00",
		Location:     "North Lot",
		MaxCount:     max,
		CurrentCount: current,
		Status:       models.SessionStatusPending,
	}
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	svc, repo, sessions := newEnrollmentFixture(pendingSession(0, 2))

	detail, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "u1", detail.UserID)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
	assert.NotNil(t, repo.created)
	assert.Equal(t, 1, sessions.sessions["PT0001"].CurrentCount)
}

func TestEnrollmentServiceEnrollSessionFull(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(pendingSession(2, 2))

	_, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionFull.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollRaceLosesLastSlot(t *testing.T) {
	// Pre-checks see a free slot but the guarded claim reports no
	// rows: a concurrent enrollment took the last place first.
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.denyClaim = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionFull.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	_, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollSessionNotPending(t *testing.T) {
	session := pendingSession(0, 2)
	session.Status = models.SessionStatusCompleted
	svc, _, _ := newEnrollmentFixture(session)

	_, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollUnknownUser(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(pendingSession(0, 2))

	_, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "ghost", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// Full lifecycle of a single-slot session: the first student takes the
// slot, the second is turned away, and cancelling frees the slot for
// the second student to claim.
func TestEnrollmentServiceLastSlotLifecycle(t *testing.T) {
	svc, _, sessions := newEnrollmentFixture(pendingSession(0, 1))
	ctx := context.Background()

	first, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", SessionID: "PT0001"})
	require.NoError(t, err)
	assert.Equal(t, 1, sessions.sessions["PT0001"].CurrentCount)

	_, err = svc.Enroll(ctx, EnrollRequest{UserID: "u2", SessionID: "PT0001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionFull.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Cancel(ctx, first.ID, models.JWTClaims{UserID: "u1", Role: models.RoleStudent}))
	assert.Equal(t, 0, sessions.sessions["PT0001"].CurrentCount)

	second, err := svc.Enroll(ctx, EnrollRequest{UserID: "u2", SessionID: "PT0001"})
	require.NoError(t, err)
	assert.Equal(t, "u2", second.UserID)
	assert.Equal(t, 1, sessions.sessions["PT0001"].CurrentCount)
}

func TestEnrollmentServiceCancelReleasesSlot(t *testing.T) {
	svc, repo, sessions := newEnrollmentFixture(pendingSession(1, 2))
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	err := svc.Cancel(context.Background(), "e1", models.JWTClaims{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "e1")
	assert.Equal(t, 0, sessions.sessions["PT0001"].CurrentCount)
}

func TestEnrollmentServiceCancelForbiddenForOtherStudent(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	err := svc.Cancel(context.Background(), "e1", models.JWTClaims{UserID: "u2", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestEnrollmentServiceCancelAdminOverride(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	err := svc.Cancel(context.Background(), "e1", models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "e1")
}

func TestEnrollmentServiceCancelCompletedSessionRejected(t *testing.T) {
	session := pendingSession(1, 2)
	session.Status = models.SessionStatusCompleted
	svc, repo, _ := newEnrollmentFixture(session)
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	err := svc.Cancel(context.Background(), "e1", models.JWTClaims{UserID: "u1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCancelToleratesMissingSession(t *testing.T) {
	svc, repo, sessions := newEnrollmentFixture(pendingSession(1, 2))
	delete(sessions.sessions, "PT0001")
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending},
	}

	err := svc.Cancel(context.Background(), "e1", models.JWTClaims{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "e1")
}

func TestEnrollmentServiceListByUserScoped(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", UserID: "u1", SessionID: "PT0001"},
		"e2": {ID: "e2", UserID: "u2", SessionID: "PT0001"},
	}

	list, _, err := svc.ListByUser(context.Background(), "u1", models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, models.EnrollmentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)

	_, _, err = svc.ListByUser(context.Background(), "u1", models.JWTClaims{UserID: "u2", Role: models.RoleStudent}, models.EnrollmentFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceStatsZeroDefaults(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(0, 2))
	repo.counts = map[models.EnrollmentStatus]int{models.EnrollmentStatusCompleted: 3}

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Absent)
	assert.Equal(t, 3, stats.Total)
}

func TestEnrollmentServiceExportRosterCSV(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(pendingSession(1, 2))
	repo.roster = map[string][]models.EnrollmentRosterEntry{
		"PT0001": {{
			Enrollment: models.Enrollment{ID: "e1", UserID: "u1", SessionID: "PT0001", Status: models.EnrollmentStatusPending, EnrolledAt: time.Now().UTC()},
			UserName:   "Dana Lee",
			UserEmail:  "dana@example.com",
		}},
	}

	out, err := svc.ExportRoster(context.Background(), "PT0001", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", out.ContentType)
	assert.Contains(t, string(out.Content), "Dana Lee")
}

func TestEnrollmentServiceExportRosterBadFormat(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(pendingSession(0, 2))

	_, err := svc.ExportRoster(context.Background(), "PT0001", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
